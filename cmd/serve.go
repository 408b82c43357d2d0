package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxrules/internal/config"
	"github.com/teemow/inboxrules/internal/logging"
	"github.com/teemow/inboxrules/internal/processor"
	"github.com/teemow/inboxrules/internal/server"
)

const serverStartupTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		httpAddr       string
		metricsAddr    string
		metricsEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inboxrules HTTP API server",
		Long: `Start the HTTP API for rule management, inbox previews, background
processing jobs and dashboard statistics.

Requests identify the acting user with the X-User-ID header. Authentication
is expected to be handled by a proxy in front of the server.

Prometheus metrics are served on a separate port (default :9090).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Server.Addr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.Server.MetricsEnabled = metricsEnabled
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "API server address. Can also use INBOXRULES_HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use INBOXRULES_METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg *config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	if err := cfg.Google().Validate(); err != nil {
		return err
	}

	provider, err := newInstrumentation(shutdownCtx)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Server.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := startWithReadySignal("metrics", metricsServer.StartWithReadySignal); err != nil {
			return err
		}
	}

	st, err := openStore(shutdownCtx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	proc := newProcessor(cfg, st, provider, logger)
	runner := processor.NewRunner(proc, provider.Metrics(), logger)

	api := server.NewAPI(st, proc, runner, server.Limits{
		MaxEmails:     cfg.Processing.MaxEmails,
		PreviewEmails: cfg.Processing.PreviewEmails,
	}, provider.Metrics(), logger)

	health := server.NewHealthChecker(map[string]server.ReadinessCheck{
		"store": st.Ping,
	})
	apiServer := server.NewAPIServer(cfg.Server.Addr, api, health)

	serveErr := make(chan error, 1)
	apiReady := make(chan struct{})
	go func() {
		if err := apiServer.StartWithReadySignal(apiReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-apiReady:
	case err := <-serveErr:
		return fmt.Errorf("API server failed to start: %w", err)
	}

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("API server stopped", logging.Err(err))
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = server.DefaultShutdownTimeout
	}
	ctx, cancelTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelTimeout()

	var errs []error
	if err := apiServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
	}
	if err := runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("job runner shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// startWithReadySignal runs start in a goroutine and waits until the server
// is listening, fails or the startup timeout passes.
func startWithReadySignal(name string, start func(chan<- struct{}) error) error {
	ready := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		if err := start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startErr <- err
		}
		close(startErr)
	}()

	select {
	case <-ready:
		return nil
	case err := <-startErr:
		if err == nil {
			return nil
		}
		return fmt.Errorf("%s server failed to start: %w", name, err)
	case <-time.After(serverStartupTimeout):
		return fmt.Errorf("%s server startup timed out", name)
	}
}
