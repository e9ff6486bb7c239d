package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/uvalib/tracksys2/internal/apiclient"
	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	mockauth "github.com/uvalib/tracksys2/internal/mocks/auth"
	"github.com/uvalib/tracksys2/internal/poller"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

const testInterval = time.Second

// storeEnv is a backend served by httptest with a signed-in session.
type storeEnv struct {
	srv    *httptest.Server
	deps   StoreDeps
	nav    *mockauth.RecordingNavigator
	system *SystemStore
	clock  *clockwork.FakeClock
}

func newStoreEnv(t *testing.T, h http.Handler) *storeEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	codec := session.NewCodec("k")
	tok, err := codec.Mint(domainauth.User{ID: 7, ComputeID: "lf6f", Role: domainauth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	sc := session.NewContext(codec, nil)
	sc.SetJWT(tok)

	storage := mockauth.NewMemoryStorage(map[string]string{ports.KeyToken: tok})
	nav := &mockauth.RecordingNavigator{}
	client := apiclient.New(apiclient.Options{
		BaseURL:   srv.URL,
		Session:   sc,
		Storage:   storage,
		Navigator: nav,
	})
	system := NewSystemStore(SystemStoreOptions{Backend: client, JobsURL: srv.URL + "/jobs"})

	return &storeEnv{
		srv:    srv,
		deps:   StoreDeps{Backend: client, System: system, Navigator: nav},
		nav:    nav,
		system: system,
		clock:  clockwork.NewFakeClock(),
	}
}

func (e *storeEnv) poll() PollOptions {
	return PollOptions{Interval: testInterval, Clock: e.clock}
}

func (e *storeEnv) extractor(t *testing.T) *poller.StatusExtractor {
	t.Helper()
	ex, err := poller.NewStatusExtractor("status", "error")
	require.NoError(t, err)
	return ex
}

// tick waits for a poll timer to be armed and fires it.
func (e *storeEnv) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.clock.BlockUntilContext(ctx, 1))
	e.clock.Advance(testInterval)
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}
