package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/hydropool/internal/adapters/http/api"
	"github.com/okian/hydropool/internal/app"
	"github.com/okian/hydropool/internal/config"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "hydropool failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(cfg.Metrics.Options()...)

	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn(ctx, "closing source failed", logger.Error(err))
		}
	}()

	summary, err := svc.Evaluate(ctx)
	if err != nil {
		return err
	}
	for _, p := range summary.Pools {
		if p.Failed() {
			log.Warn(ctx, "pool failed", logger.Uint64("pool_id", p.ID), logger.String("group", p.Group),
				logger.String("error", p.Error))
		}
	}
	log.Info(ctx, "evaluation summary",
		logger.String("evaluation", summary.EvaluationID),
		logger.Int("pools", len(summary.Pools)),
		logger.Int("failed", summary.Failures()))

	if cfg.RunOnce {
		return nil
	}
	return serve(ctx, newServer(cfg.Addr, svc))
}

func newServer(addr string, deps api.Dependencies) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(deps).Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	log := logger.Get()
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting status server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}
