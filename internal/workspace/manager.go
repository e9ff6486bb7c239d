package workspace

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/apiclient"
	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/observability/metrics"
	"github.com/uvalib/tracksys2/internal/observability/statsd"
	"github.com/uvalib/tracksys2/internal/poller"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/session"
)

// ManagerOptions groups dependencies for Manager.
type ManagerOptions struct {
	Storage   ports.BrowserStorage    // Required: per-browser client storage
	Codec     *session.Codec          // Required: JWT decoding
	Extractor *poller.StatusExtractor // Required: jobs-service status documents

	Backend   config.BackendConfig
	Poll      config.PollConfig
	Workspace config.WorkspaceConfig
	// AuthenticateURL is where unauthenticated navigations are sent.
	AuthenticateURL string

	// Breaker is shared by every workspace's client.
	Breaker   apiclient.Middleware
	Transport http.RoundTripper // Optional: innermost backend transport
	Clock     clockwork.Clock   // Optional: drives idle expiry and polling
	Metrics   statsd.Sink       // Optional: metrics sink
	Logger    *slog.Logger      // Optional: structured logger
}

// Manager creates workspaces on first use and evicts them when idle or when
// capacity is exceeded. Evicted workspaces have their polls canceled; their
// client storage is kept so a returning browser is still signed in.
type Manager struct {
	opts     ManagerOptions
	registry *Registry[*Workspace]
	logger   *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Storage == nil || opts.Codec == nil || opts.Extractor == nil {
		//nolint:forbidigo // Construction must fail fast during wiring when dependencies are missing
		panic("workspace.Manager: Storage, Codec and Extractor are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "workspace_manager")

	m := &Manager{opts: opts, logger: logger}
	m.registry = NewRegistry(RegistryConfig[*Workspace]{
		Capacity: opts.Workspace.Capacity,
		IdleTTL:  opts.Workspace.IdleTTL,
		Clock:    opts.Clock,
		OnEvict:  m.evicted,
	})
	return m
}

// Get returns the workspace for a browser id, creating it on first use.
func (m *Manager) Get(browserID string) *Workspace {
	ws, created := m.registry.GetOrCreate(browserID, func() *Workspace { return m.build(browserID) })
	if created {
		m.logger.Debug("workspace created", slog.String("browser", shortID(browserID)))
	}
	return ws
}

// Lookup returns an existing workspace without creating one.
func (m *Manager) Lookup(browserID string) (*Workspace, bool) {
	return m.registry.Get(browserID)
}

// Forget drops a browser's workspace and everything stored for it.
func (m *Manager) Forget(ctx context.Context, browserID string) error {
	m.registry.Delete(browserID)
	return m.opts.Storage.Purge(ctx, browserID)
}

// Sweep evicts idle workspaces.
func (m *Manager) Sweep() int {
	n := m.registry.Sweep()
	metrics.EmitWorkspaceEvictions(m.opts.Metrics, string(EvictIdle), n, m.registry.Len())
	return n
}

// Close evicts every workspace, canceling their polls.
func (m *Manager) Close() int {
	n := m.registry.Clear()
	metrics.EmitWorkspaceEvictions(m.opts.Metrics, string(EvictShutdown), n, 0)
	return n
}

// Live is the number of workspaces held.
func (m *Manager) Live() int { return m.registry.Len() }

// Stats exposes registry counters.
func (m *Manager) Stats() RegistryStats { return m.registry.Stats() }

func (m *Manager) evicted(id string, ws *Workspace, reason EvictReason) {
	ws.Close()
	m.logger.Debug("workspace evicted",
		slog.String("browser", shortID(id)),
		slog.String("reason", string(reason)),
	)
	if reason == EvictCapacity {
		metrics.EmitWorkspaceEvictions(m.opts.Metrics, string(reason), 1, m.registry.Len())
	}
}

func (m *Manager) build(id string) *Workspace {
	logger := m.logger.With("browser", shortID(id))
	storage := m.opts.Storage.For(id)
	sess := session.NewContext(m.opts.Codec, logger)
	nav := &pendingNavigation{}

	client := apiclient.New(apiclient.Options{
		BaseURL:                 m.opts.Backend.APIURL,
		Session:                 sess,
		Storage:                 storage,
		Navigator:               nav,
		UnauthenticatedPrefixes: m.opts.Backend.UnauthenticatedPrefixes,
		Timeout:                 m.opts.Backend.Timeout,
		Transport:               m.opts.Transport,
		Breaker:                 m.opts.Breaker,
		Logger:                  logger,
	})

	system := service.NewSystemStore(service.SystemStoreOptions{
		Backend: client,
		JobsURL: m.opts.Backend.JobsURL,
		Exempt:  client,
		Logger:  logger,
	})
	deps := service.StoreDeps{Backend: client, System: system, Navigator: nav, Logger: logger}
	pdfPoll := m.pollOptions(m.opts.Poll.PDFInterval)
	jobPoll := m.pollOptions(m.opts.Poll.JobInterval)

	units := service.NewUnitsStore(service.UnitsStoreOptions{Deps: deps})
	return &Workspace{
		ID:      id,
		Session: sess,
		Storage: storage,
		Client:  client,
		System:  system,
		Units:   units,
		PDF:     service.NewPDFStore(service.PDFStoreOptions{Deps: deps, Poll: pdfPoll}),
		MasterFiles: service.NewMasterFilesStore(service.MasterFilesStoreOptions{
			Deps:      deps,
			Poll:      jobPoll,
			Units:     units,
			Extractor: m.opts.Extractor,
		}),
		Orders: service.NewOrdersStore(service.OrdersStoreOptions{
			Deps:      deps,
			Poll:      jobPoll,
			Extractor: m.opts.Extractor,
		}),
		Jobs:     service.NewJobsStore(service.JobsStoreOptions{Deps: deps}),
		Metadata: service.NewMetadataStore(service.MetadataStoreOptions{Deps: deps}),
		guard: guard.New(guard.Options{
			Session:         sess,
			Storage:         storage,
			AuthenticateURL: m.opts.AuthenticateURL,
			Logger:          logger,
		}),
		nav:    nav,
		logger: logger,
	}
}

func (m *Manager) pollOptions(interval time.Duration) service.PollOptions {
	return service.PollOptions{Interval: interval, Clock: m.opts.Clock, Metrics: m.opts.Metrics}
}

// shortID keeps browser ids out of logs in full.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
