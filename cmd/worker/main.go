package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"einvoice-gateway/internal/config"
	"einvoice-gateway/internal/document"
	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/models"
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

	processor := service.NewProcessor(repo, repo, docs, fbr, m, logger, cfg.Retention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(cfg.ProcessInterval)
	defer ticker.Stop()

	logger.Infow("worker started", "interval", cfg.ProcessInterval, "batch_limit", cfg.ScheduledLimit)

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			runScheduledCycle(ctx, repo, processor, cfg.ScheduledLimit, logger)
		}
	}
}

// runScheduledCycle runs one processing cycle, skipping it entirely when
// there is no pending work.
func runScheduledCycle(ctx context.Context, repo *repository.SQLiteRepository, processor *service.Processor, limit int, logger *zap.SugaredLogger) {
	pending, err := repo.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		logger.Errorw("failed to count pending jobs", "error", err)
		return
	}
	if pending == 0 {
		return
	}

	result, err := processor.RunCycle(ctx, limit)
	if err != nil {
		logger.Errorw("processing cycle failed", "error", err)
		return
	}

	logger.Infow("scheduled cycle finished",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
}
