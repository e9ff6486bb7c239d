package bootstrap

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/adapters/memory"
	redisadapter "github.com/uvalib/tracksys2/internal/adapters/redis"
	"github.com/uvalib/tracksys2/internal/apiclient"
	"github.com/uvalib/tracksys2/internal/observability/prom"
	"github.com/uvalib/tracksys2/internal/observability/statsd"
	"github.com/uvalib/tracksys2/internal/poller"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// BuildBrowserStorage selects the client storage backend. Redis storage
// needs a connected client.
//
//nolint:ireturn // callers only need the port.
func BuildBrowserStorage(cfg config.StorageConfig, client redis.UniversalClient) (ports.BrowserStorage, error) {
	switch cfg.Backend {
	case config.StorageBackendRedis:
		if client == nil {
			return nil, errors.New("redis browser storage requires a redis client")
		}
		return redisadapter.NewBrowserStorage(client, redisadapter.BrowserStorageOptions{
			Prefix: cfg.Prefix,
			TTL:    cfg.TTL,
		}), nil
	default:
		return memory.NewBrowserStorage(memory.BrowserStorageOptions{TTL: cfg.TTL}), nil
	}
}

// ObservabilityContainer holds the metrics sink and, for Prometheus, the
// scrape handler.
type ObservabilityContainer struct {
	Metrics statsd.Sink
	Handler http.Handler
	closer  io.Closer
}

// Close releases the StatsD connection, if any.
func (o ObservabilityContainer) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// BuildObservability wires the configured metrics sink. Failures degrade to
// a discarding sink so metrics never block startup.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	m := cfg.Metrics
	if !m.IsEnabled() {
		return ObservabilityContainer{Metrics: statsd.Discard{}}
	}
	if m.UsesPrometheus() {
		sink := prom.NewSink(m.Prefix, logger)
		logger.Info("prometheus metrics enabled", "namespace", m.Prefix)
		return ObservabilityContainer{Metrics: sink, Handler: sink.Handler()}
	}

	client, err := statsd.NewClient(statsd.Config{
		Address: m.StatsdAddress,
		Prefix:  m.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd metrics disabled", "error", err)
		return ObservabilityContainer{Metrics: statsd.Discard{}}
	}
	logger.Info("statsd metrics enabled", "address", m.StatsdAddress, "prefix", m.Prefix)
	return ObservabilityContainer{Metrics: client, closer: client}
}

// ManagerDeps groups what the workspace manager is built from.
type ManagerDeps struct {
	Config  *config.AppConfig
	Storage ports.BrowserStorage
	Codec   *session.Codec
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// BuildWorkspaceManager builds the per-browser workspace manager with one
// backend circuit breaker shared by every workspace.
func BuildWorkspaceManager(deps ManagerDeps) (*workspace.Manager, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("workspace manager: config is required")
	}
	extractor, err := poller.NewStatusExtractor(cfg.Poll.StatusExpr, cfg.Poll.ErrorExpr)
	if err != nil {
		return nil, err
	}
	breaker, _ := apiclient.Breaker(apiclient.BreakerOptions{
		Name:     "tracksys-api",
		Failures: cfg.Backend.BreakerFailures,
		Cooldown: cfg.Backend.BreakerCooldown,
		Logger:   deps.Logger,
	})
	return workspace.NewManager(workspace.ManagerOptions{
		Storage:         deps.Storage,
		Codec:           deps.Codec,
		Extractor:       extractor,
		Backend:         cfg.Backend,
		Poll:            cfg.Poll,
		Workspace:       cfg.Workspace,
		AuthenticateURL: cfg.Auth.AuthenticateURL,
		Breaker:         breaker,
		Metrics:         deps.Metrics,
		Logger:          deps.Logger,
	}), nil
}
