package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/session"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// ServiceDeps groups the infrastructure services are built on.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient // nil unless Redis storage is selected
	Logger      *slog.Logger
}

// ServiceContainer holds the long-lived components of the process.
type ServiceContainer struct {
	Workspaces    *workspace.Manager
	Auth          *service.AuthService
	Observability ObservabilityContainer
}

// NewServices builds the workspace manager, auth service and metrics.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := BuildObservability(logger, cfg.Observability)
	storage, err := BuildBrowserStorage(cfg.Storage, deps.RedisClient)
	if err != nil {
		return ServiceContainer{}, err
	}
	codec := session.NewCodec(cfg.Auth.JWTKey)
	if !codec.Verifies() {
		logger.Warn("AUTH_JWT_KEY is not set; session tokens are decoded without verification")
	}

	manager, err := BuildWorkspaceManager(ManagerDeps{
		Config:  cfg,
		Storage: storage,
		Codec:   codec,
		Metrics: obs.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build workspace manager: %w", err)
	}

	auth, err := BuildAuthService(ctx, AuthConfig{Auth: cfg.Auth, Codec: codec, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{Workspaces: manager, Auth: auth, Observability: obs}, nil
}

// ServiceOrchestrationConfig contains what RunServices needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServices runs every enabled service until ctx is done or one of them
// fails, then evicts all workspaces so in-flight polls stop.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	manager := cfg.Services.Workspaces
	defer func() {
		n := manager.Close()
		logger.Info("workspaces released", "count", n)
		if cerr := cfg.Services.Observability.Close(); cerr != nil {
			logger.Warn("close metrics sink failed", "error", cerr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeHTTP] {
		server, serr := NewHTTPServer(&HTTPServerConfig{
			Config:     cfg.Config,
			Workspaces: manager,
			Auth:       cfg.Services.Auth,
			Metrics:    cfg.Services.Observability.Handler,
			Logger:     logger,
		})
		if serr != nil {
			return serr
		}
		g.Go(func() error { return ServeHTTP(gctx, server, cfg.Config.HTTP, logger) })
	}

	if enabled[config.ServiceModeSweeper] {
		sweeper, serr := workspace.NewSweeper(workspace.SweeperOptions{
			Target:   manager,
			Interval: cfg.Config.Workspace.SweepInterval,
			Logger:   logger,
		})
		if serr != nil {
			return fmt.Errorf("create workspace sweeper: %w", serr)
		}
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	if err = g.Wait(); err != nil {
		return err
	}
	logger.Info("all services stopped")
	return nil
}
