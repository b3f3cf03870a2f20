package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"symptom-triage/internal/config"
	"symptom-triage/internal/platform/observability"
	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"
	"symptom-triage/internal/triage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	metrics := observability.NewCollector("triage")

	// 2. Clients
	cat, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("symptom catalog: %w", err)
	}
	predictor := prediction.NewClient(cfg.PredictorURL, cfg.PredictorTimeout, cfg.BreakerSettings(), logger)

	// 3. Services
	svc, err := triage.NewService(triage.Deps{
		Repository: triage.NewMemoryRepository(),
		Catalog:    cat,
		Predictor:  predictor,
		Presenter:  result.NewPresenter(cfg.TipsBase),
		Report:     result.NewReport(cfg.FontPaths),
		Script:     cfg.Script(),
		Timing:     cfg.Timing(),
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("triage service: %w", err)
	}
	pages, err := triage.NewPages(svc, logger)
	if err != nil {
		return fmt.Errorf("page templates: %w", err)
	}
	handler := triage.NewHandler(svc, logger)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	triage.RegisterPages(r, pages)
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
		triage.RegisterRoutes(r, handler)
	})

	// 5. Background sweeper
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := svc.Sweep(cfg.SessionIdleTTL); n > 0 {
					logger.Info("closed idle sessions", zap.Int("count", n))
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("predictor", cfg.PredictorURL),
			zap.Int("symptoms", cat.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
