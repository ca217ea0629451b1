package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/api"
	audithook "github.com/xraph/subvault/audit_hook"
	"github.com/xraph/subvault/extension"
	"github.com/xraph/subvault/observability"
	"github.com/xraph/subvault/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the batch charge scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Getenv)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel))
		},
	}
}

// serve runs until ctx is cancelled. It refuses to start without a JWT
// secret unless insecure mode is explicitly enabled.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if err := extension.RequireServeAuth(cfg.Config); err != nil {
		return fmt.Errorf("%w (%s or %s)", err, envJWTSecret, envAllowInsecure)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("serving the API without authentication", "env", envAllowInsecure)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := openRuntime(ctx, cfg, logger,
		subvault.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		subvault.WithPlugin(audithook.New(auditLogRecorder(logger), audithook.WithLogger(logger))),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.close(); err != nil {
			logger.Warn("close vault", "error", err)
		}
	}()

	if err := rt.vault.Start(ctx); err != nil {
		return err
	}

	if !cfg.DisableScheduler {
		sched, err := scheduler.New(rt.vault,
			scheduler.WithInterval(cfg.SchedulerInterval),
			scheduler.WithPageSize(cfg.SchedulerPageSize),
			scheduler.WithLocker(rt.locker),
			scheduler.WithLogger(logger),
			scheduler.WithCaller(extension.AdminCaller(rt.vault, rt.auth, logger)),
		)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				logger.Warn("stop scheduler", "error", err)
			}
		}()
	}

	metrics := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	e := api.NewServer(rt.vault, api.WithLogger(logger), api.WithBasePath(cfg.BasePath)).Echo()

	errc := make(chan error, 2)
	go func() {
		logger.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("api listening", "addr", cfg.ListenAddr, "base_path", cfg.BasePath)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return errors.Join(err, e.Shutdown(shutdownCtx), metrics.Shutdown(shutdownCtx))
}

// auditLogRecorder writes audit records to the structured log.
func auditLogRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("event_id", ev.EventID),
			slog.String("action", ev.Action),
			slog.String("resource", ev.Resource),
			slog.String("resource_id", ev.ResourceID),
			slog.String("outcome", ev.Outcome),
			slog.String("severity", ev.Severity),
			slog.Any("metadata", ev.Metadata),
		)
		return nil
	})
}
