package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"einvoice-gateway/internal/config"
	"einvoice-gateway/internal/document"
	"einvoice-gateway/internal/handler"
	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/repository"
	"einvoice-gateway/internal/service"
	"einvoice-gateway/internal/transport"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalw("failed to load configuration", "error", err)
	}

	repo, err := repository.NewSQLiteRepository(cfg.DBPath, cfg.MaxRetries)
	if err != nil {
		logger.Fatalw("failed to initialize repository", "error", err)
	}
	defer repo.Close()

	m := metrics.NewMetrics()
	guard := service.NewEnqueueGuard(cfg.MaxPendingJobs, cfg.MaxEnqueuePerMinute)

	erp := document.NewERPClient(cfg.ERPBaseURL, cfg.ERPToken)
	docs := document.NewResolver(erp)

	fbr := transport.NewClient(transport.Options{
		Endpoint:            cfg.FBREndpoint,
		Token:               cfg.FBRToken,
		ConnectTimeout:      cfg.ConnectTimeout,
		ReadTimeout:         cfg.ReadTimeout,
		MaxResponseBytes:    cfg.MaxResponseBytes,
		RejectionIsTerminal: cfg.RejectionIsTerminal,
	}, logger)

	queueSvc := service.NewQueueService(repo, repo, guard, m, logger)
	processor := service.NewProcessor(repo, repo, docs, fbr, m, logger, cfg.Retention)
	submitter := service.NewSubmitter(repo, repo, docs, fbr, m, logger)

	h := handler.NewGatewayHandler(queueSvc, processor, submitter, m, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(handler.BearerAuth(cfg.AuthToken))
		r.Post("/queue", h.Enqueue)
		r.Post("/queue/process", h.Process)
		r.Post("/queue/retry-failed", h.RetryFailed)
		r.Post("/submissions", h.Submit)
		r.Post("/submissions/bulk", h.BulkSubmit)
	})
	r.Get("/queue/status", h.Status)
	r.Get("/logs", h.Logs)
	r.Get("/stats", h.Stats)
	r.Get("/metrics", h.Metrics)

	server := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: r,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Infow("api server starting", "addr", cfg.APIAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("error shutting down server", "error", err)
	}
	logger.Info("server stopped")
}
