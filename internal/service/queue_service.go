package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/models"
	"einvoice-gateway/internal/repository"
)

var (
	ErrQueueFull   = errors.New("queue is full, try again later")
	ErrRateLimited = errors.New("enqueue rate limit exceeded")
)

// DefaultPriority is assigned when an enqueue request carries none.
const DefaultPriority = 5

// failedListLimit bounds the failure detail in the status snapshot.
const failedListLimit = 10

// QueueService handles queue intake and operational visibility.
type QueueService struct {
	repo    repository.QueueRepository
	log     repository.LogRepository
	guard   *EnqueueGuard
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

// NewQueueService creates a queue service.
func NewQueueService(repo repository.QueueRepository, log repository.LogRepository, guard *EnqueueGuard, m *metrics.Metrics, logger *zap.SugaredLogger) *QueueService {
	return &QueueService{
		repo:    repo,
		log:     log,
		guard:   guard,
		metrics: m,
		logger:  logger,
	}
}

// Enqueue accepts a submission job for the identity. A second request for an
// identity with an active job updates that job instead of duplicating it.
func (s *QueueService) Enqueue(ctx context.Context, req *models.EnqueueRequest) (string, error) {
	if err := s.guard.CheckRate(); err != nil {
		s.metrics.IncrementRejectedEnqueue()
		return "", err
	}

	pending, err := s.repo.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		return "", fmt.Errorf("failed to count pending jobs: %w", err)
	}
	if err := s.guard.CheckPendingCap(pending); err != nil {
		s.metrics.IncrementRejectedEnqueue()
		return "", err
	}

	priority := DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	id := models.Identity{DocumentType: req.DocumentType, DocumentID: req.DocumentID}
	jobID, err := s.repo.Enqueue(ctx, id, priority)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue: %w", err)
	}

	s.metrics.IncrementEnqueued()
	s.logger.Infow("job enqueued",
		"job_id", jobID,
		"document_type", req.DocumentType,
		"document_id", req.DocumentID,
		"priority", priority)

	return jobID, nil
}

// Status returns per-status counts and the most recent failures.
func (s *QueueService) Status(ctx context.Context) (*models.QueueStatus, error) {
	counts, err := s.repo.StatusSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status summary: %w", err)
	}

	failed, err := s.repo.ListFailed(ctx, failedListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	return &models.QueueStatus{Counts: counts, FailedJobs: failed}, nil
}

// RetryFailed bulk-resets eligible Failed jobs to Pending.
func (s *QueueService) RetryFailed(ctx context.Context) (int, error) {
	n, err := s.repo.ResetFailedToPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed jobs: %w", err)
	}
	s.logger.Infow("failed jobs reset to pending", "count", n)
	return n, nil
}

// RecentLogs returns the newest submission log entries.
func (s *QueueService) RecentLogs(ctx context.Context, limit int) ([]*models.SubmissionLogEntry, error) {
	entries, err := s.log.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submission logs: %w", err)
	}
	return entries, nil
}

// Stats reports today's submission attempts grouped by outcome alongside the
// queue counts.
func (s *QueueService) Stats(ctx context.Context) (map[string]interface{}, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today, err := s.log.CountsSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's submissions: %w", err)
	}

	counts, err := s.repo.StatusSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status summary: %w", err)
	}

	return map[string]interface{}{
		"today_submissions": today,
		"queue_status":      counts,
	}, nil
}
