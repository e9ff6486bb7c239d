package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/adapters/memory"
	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/poller"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
	"github.com/uvalib/tracksys2/internal/workspace"
)

const testAuthenticateURL = "https://auth.example.edu/authenticate"

// routerEnv is a router wired to a real workspace manager and a fake backend.
type routerEnv struct {
	handler http.Handler
	manager *workspace.Manager
	storage *memory.BrowserStorage
	codec   *session.Codec
	backend *httptest.Server
}

func newRouterEnv(t *testing.T, backend http.Handler) *routerEnv {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	ex, err := poller.NewStatusExtractor("status", "error")
	require.NoError(t, err)

	storage := memory.NewBrowserStorage(memory.BrowserStorageOptions{})
	codec := session.NewCodec("secret")
	m := workspace.NewManager(workspace.ManagerOptions{
		Storage:         storage,
		Codec:           codec,
		Extractor:       ex,
		Backend:         config.BackendConfig{APIURL: srv.URL, JobsURL: srv.URL, Timeout: 5 * time.Second},
		Poll:            config.PollConfig{PDFInterval: time.Second, JobInterval: time.Second},
		Workspace:       config.WorkspaceConfig{Capacity: 16, IdleTTL: time.Hour},
		AuthenticateURL: testAuthenticateURL,
	})
	t.Cleanup(func() { m.Close() })

	h := NewRouter(RouterServices{
		Workspaces: m,
		TemplateFS: os.DirFS(TemplatePathFromTest),
		StaticFS:   os.DirFS("../../web/static"),
	})
	return &routerEnv{handler: h, manager: m, storage: storage, codec: codec, backend: srv}
}

func (e *routerEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := e.codec.Mint(domainauth.User{ID: 3, ComputeID: "mst3k", FirstName: "Mary", LastName: "Smith", Role: domainauth.RoleSupervisor}, time.Hour)
	require.NoError(t, err)
	return tok
}

// signIn stores a valid token for a new browser and returns its id.
func (e *routerEnv) signIn(t *testing.T) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, e.storage.For(id).Set(context.Background(), ports.KeyToken, e.token(t)))
	return id
}

func (e *routerEnv) stored(t *testing.T, browserID, key string) string {
	t.Helper()
	v, err := e.storage.For(browserID).Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

type reqOpts struct {
	browser string
	json    bool
	body    string
	form    bool
	cookies []*http.Cookie
}

func (e *routerEnv) do(method, path string, o reqOpts) *httptest.ResponseRecorder {
	var body io.Reader
	if o.body != "" {
		body = strings.NewReader(o.body)
	}
	req := httptest.NewRequest(method, path, body)
	if o.json {
		req.Header.Set("Accept", "application/json")
		if o.body != "" && !o.form {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req.Header.Set("Accept", "text/html")
	}
	if o.form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if o.browser != "" {
		req.AddCookie(&http.Cookie{Name: defaultBrowserKey, Value: o.browser})
	}
	for _, c := range o.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeBackend answers the endpoints the pages read.
func fakeBackend() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"version": "2.4.0", "reportsURL": "https://reports.example.edu"})
	})
	mux.HandleFunc("GET /api/orders", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"orders": []map[string]any{{
				"id":            7,
				"status":        "active",
				"title":         "Civil War letters",
				"dateDue":       "2026-03-01T00:00:00Z",
				"dateSubmitted": "2026-02-01T00:00:00Z",
				"customer":      map[string]any{"firstName": "Ann", "lastName": "Lee"},
				"unitCount":     2,
			}},
			"total": 1,
		})
	})
	mux.HandleFunc("GET /api/orders/404", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "order not found", http.StatusNotFound)
	})
	mux.HandleFunc("GET /api/units/5", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": 5, "orderID": 7, "metadataID": 11, "status": "approved"})
	})
	mux.HandleFunc("GET /api/units/5/masterfiles", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 100, "pid": "tsm:100", "unitID": 5, "filename": "0005_0001.tif"},
			{"id": 101, "pid": "tsm:101", "unitID": 5, "filename": "0005_0002.tif"},
		})
	})
	mux.HandleFunc("GET /api/metadata/1", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /api/jobs", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database offline", http.StatusInternalServerError)
	})
	mux.HandleFunc("DELETE /api/jobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Jobs []int64 `json:"jobs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, body)
	})
	return mux
}
