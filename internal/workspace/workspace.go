// Package workspace holds the per-browser state of the admin front end: the
// session, its backend client and the resource stores, kept alive between
// requests and evicted when idle.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/uvalib/tracksys2/internal/apiclient"
	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/session"
)

// pendingNavigation holds the page a background failure wants the browser
// to visit next. The last push wins.
type pendingNavigation struct {
	mu   sync.Mutex
	path string
}

func (p *pendingNavigation) Push(path string) {
	p.mu.Lock()
	p.path = path
	p.mu.Unlock()
}

func (p *pendingNavigation) take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	path := p.path
	p.path = ""
	return path
}

// Workspace is everything one browser owns.
type Workspace struct {
	ID      string
	Session *session.Context
	Storage ports.ClientStorage
	Client  *apiclient.Client

	System      *service.SystemStore
	Units       *service.UnitsStore
	PDF         *service.PDFStore
	MasterFiles *service.MasterFilesStore
	Orders      *service.OrdersStore
	Jobs        *service.JobsStore
	Metadata    *service.MetadataStore

	guard  *guard.Guard
	nav    *pendingNavigation
	logger *slog.Logger

	cfgMu     sync.Mutex
	cfgLoaded bool

	// mu serializes navigations so guard side effects on storage and the
	// session happen in request order.
	mu sync.Mutex
}

// Navigator is where background work sends the browser.
func (w *Workspace) Navigator() ports.Navigator { return w.nav }

// TakeNavigation returns the pending navigation once, then "".
func (w *Workspace) TakeNavigation() string { return w.nav.take() }

// Evaluate runs the session guard for a navigation.
func (w *Workspace) Evaluate(ctx context.Context, nav guard.Navigation) (guard.Decision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.guard.Evaluate(ctx, nav)
}

// TakeIntent returns and clears the remembered navigation intent.
func (w *Workspace) TakeIntent(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.guard.TakeIntent(ctx)
}

// Resume restores the session from client storage without running the
// guard. Actions use it; they never remember a navigation intent.
func (w *Workspace) Resume(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	token, err := w.Storage.Get(ctx, ports.KeyToken)
	if err != nil {
		return false, fmt.Errorf("load session token: %w", err)
	}
	w.Session.SetJWT(token)
	return w.Session.SignedIn(), nil
}

// LoadConfig fetches the backend configuration the first time a signed-in
// page renders. A failed load is retried on the next page.
func (w *Workspace) LoadConfig(ctx context.Context) {
	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()
	if w.cfgLoaded {
		return
	}
	if err := w.System.LoadConfig(ctx); err != nil {
		w.logger.WarnContext(ctx, "load backend config failed", slog.Any("error", err))
		return
	}
	w.cfgLoaded = true
}

// SignOut clears the session and the stored token.
func (w *Workspace) SignOut(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Session.SignOut()
	w.Close()
	return w.Storage.Remove(ctx, ports.KeyToken)
}

// Close stops every in-flight poll sequence.
func (w *Workspace) Close() {
	w.PDF.Cancel()
	w.MasterFiles.Cancel()
	w.Orders.Cancel()
}
