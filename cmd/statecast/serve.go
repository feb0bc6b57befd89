package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/statecast"
	"github.com/jpalmerr/statecast/config"
	"github.com/jpalmerr/statecast/dashboard"
	"github.com/jpalmerr/statecast/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the statecast server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and API server",
	Long: `Start the statecast server.

The server will:
  - Load configuration from the given YAML file, or use defaults
  - Seed the store from the config or the built-in sample data
  - Serve the dashboard, JSON API, SSE and WebSocket views on the configured port
  - Expose Prometheus metrics at /metrics when metrics are enabled

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  statecast serve
  statecast serve -c config.yaml
  statecast serve --config /etc/statecast/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (defaults are used when omitted)")
}

// loadConfig reads the file named by the --config flag, or returns the
// defaults when the flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	users, msgs := config.BuildSeed(cfg, time.Now())

	opts := append(config.BuildOptions(cfg),
		statecast.WithLogger(logger),
		statecast.WithObserverErrorHandler(func(err error) {
			var oe *statecast.ObserverError
			if errors.As(err, &oe) {
				logger.Error("observer failed",
					"slice", oe.Slice,
					"observer", oe.ObserverID,
					"correlation_id", oe.CorrelationID,
				)
			}
		}),
	)

	serverOpts := []server.Option{
		server.WithAssets(dashboard.Assets),
		server.WithTitle(cfg.Title),
	}

	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, statecast.WithMetrics(reg))
		serverOpts = append(serverOpts, server.WithGatherer(reg))
	}

	st, err := statecast.NewStore(users, msgs, opts...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	logger.Info("store seeded",
		"users", len(st.Users()),
		"messages", len(st.Messages()),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(st, cfg.Port, logger, serverOpts...)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return waitForShutdown(ctx, srv, st, logger)
}

// waitForShutdown blocks until ctx is cancelled, then closes the store and
// waits for its tasks and the server to drain, each bounded by
// shutdownTimeout.
func waitForShutdown(ctx context.Context, srv *server.Server, st *statecast.Store, logger *slog.Logger) error {
	<-ctx.Done()
	logger.Info("shutting down")

	// cancel pending simulations and let running ones return
	st.Close()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := st.Wait(waitCtx); err != nil {
		logger.Warn("tasks still running at shutdown", "error", err)
	}

	select {
	case <-srv.Stopped():
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
