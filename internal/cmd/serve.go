package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/internal/server"
	"github.com/3leaps/casegen/internal/server/handlers"
	"github.com/3leaps/casegen/pkg/jobregistry"
	"github.com/3leaps/casegen/pkg/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the casegen pages as a local JSON API",
	Long: `Serve health checks, Prometheus metrics and read-only JSON views of the
dashboard, files, cases, tasks and mind maps backed by the configured API.

Routes:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /metrics                   (metrics.enabled)
  GET /api/dashboard
  GET /api/files?status=&page=&page_size=
  GET /api/cases?project=&module=&task_id=&page=&page_size=
  GET /api/tasks?type=&status=
  GET /api/tasks/{id}
  GET /api/tasks/{id}/mindmap?modules=&page_size=
  GET /api/jobs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	host, port := cfg.Server.Host, cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	logger, err := observability.NewLogger("casegen", cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	api, err := newAPI()
	if err != nil {
		return err
	}
	mindmaps := view.NewMindMapView(api, cfg.Poller(), view.WithLogger(logger))
	defer mindmaps.Close()

	var registry *jobregistry.Store
	if dir, err := registryDir(); err == nil {
		registry = jobregistry.NewStore(dir)
	} else {
		logger.Warn("Job registry unavailable", zap.Error(err))
	}

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("signals", signalHealthChecker{})
	identity := GetAppIdentity()
	if identity != nil {
		health.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
	}
	if cfg.Health.Enabled {
		health.RegisterChecker("backend", handlers.BackendChecker{API: api})
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithViews(handlers.NewViews(api, mindmaps, registry, logger)),
		server.WithVersion(server.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(server.Timeouts{
			Read:     cfg.Server.ReadTimeout,
			Write:    cfg.Server.WriteTimeout,
			Idle:     cfg.Server.IdleTimeout,
			Shutdown: cfg.Server.ShutdownTimeout,
		}),
	}
	if cfg.Metrics.Enabled {
		health.RegisterChecker("metrics", metricsHealthChecker{})
		opts = append(opts, server.WithMetrics(observability.InitMetrics()))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(host, port, opts...)
	logger.Info("Starting casegen server",
		zap.String("addr", srv.Addr()),
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("metrics", cfg.Metrics.Enabled))
	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	logger.Info("Server stopped")
	return nil
}

// signalHealthChecker reports the signal handler as installed; serve only
// starts listening after it is.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// metricsHealthChecker fails until the metrics collector exists.
type metricsHealthChecker struct{}

func (metricsHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.Metrics == nil {
		return errors.New("metrics collector not initialized")
	}
	return nil
}

// identityHealthChecker verifies the application identity is complete.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("identity: missing binary name")
	case c.envPrefix == "":
		return errors.New("identity: missing env prefix")
	case c.configName == "":
		return errors.New("identity: missing config name")
	}
	return nil
}
