package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"einvoice-gateway/internal/document"
	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/models"
	"einvoice-gateway/internal/repository"
	"einvoice-gateway/internal/transport"
)

// ErrSubmissionFailed wraps a classified failure on the synchronous path.
var ErrSubmissionFailed = errors.New("submission failed")

// Submitter handles the synchronous single-document path and bulk intake.
// Unlike the processor, its failures propagate to the caller: someone is
// waiting for the answer.
type Submitter struct {
	repo      repository.QueueRepository
	log       repository.LogRepository
	docs      document.Source
	transport transport.Submitter
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

// NewSubmitter creates a submitter.
func NewSubmitter(repo repository.QueueRepository, log repository.LogRepository, docs document.Source, t transport.Submitter, m *metrics.Metrics, logger *zap.SugaredLogger) *Submitter {
	return &Submitter{
		repo:      repo,
		log:       log,
		docs:      docs,
		transport: t,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitOne submits a single document immediately, bypassing the queue. The
// outcome is returned for the caller; a non-success outcome also yields a
// descriptive error wrapping ErrSubmissionFailed.
func (s *Submitter) SubmitOne(ctx context.Context, docType, docID string, isRetry bool) (models.Outcome, error) {
	id := models.Identity{DocumentType: docType, DocumentID: docID}

	doc, err := s.docs.Resolve(ctx, id)
	if err != nil {
		s.logAttempt(ctx, id, nil, models.Outcome{
			Kind:    models.OutcomeRetryable,
			Message: err.Error(),
		})
		return models.Outcome{}, fmt.Errorf("failed to load document %s: %w", id, err)
	}

	payload, err := doc.BuildPayload(ctx)
	if err != nil {
		s.logAttempt(ctx, id, nil, models.Outcome{
			Kind:    models.OutcomeRetryable,
			Message: err.Error(),
		})
		return models.Outcome{}, fmt.Errorf("failed to build payload for %s: %w", id, err)
	}

	s.metrics.IncrementSubmitted()
	outcome := s.transport.Submit(ctx, payload, id, isRetry)

	s.logAttempt(ctx, id, payload, outcome)

	if err := doc.ApplyResult(ctx, outcome); err != nil {
		s.logger.Warnw("failed to write result back to document",
			"document_type", docType, "document_id", docID, "error", err)
	}

	if outcome.Kind != models.OutcomeSuccess {
		return outcome, fmt.Errorf("%w for %s: %s (HTTP %d)",
			ErrSubmissionFailed, id, outcome.Message, outcome.StatusCode)
	}

	s.metrics.IncrementSucceeded()
	return outcome, nil
}

// BulkSubmit queues each document of the given type, skipping those that
// already carry an authority-assigned reference. Per-document failures are
// logged and skipped; the rest of the batch proceeds.
func (s *Submitter) BulkSubmit(ctx context.Context, docType string, docIDs []string) (int, error) {
	queued := 0

	for _, docID := range docIDs {
		id := models.Identity{DocumentType: docType, DocumentID: docID}

		doc, err := s.docs.Resolve(ctx, id)
		if err != nil {
			s.logger.Warnw("skipping document in bulk submit",
				"document_type", docType, "document_id", docID, "error", err)
			continue
		}

		if doc.Reference() != "" {
			continue
		}

		if _, err := s.repo.Enqueue(ctx, id, DefaultPriority); err != nil {
			s.logger.Warnw("failed to enqueue document in bulk submit",
				"document_type", docType, "document_id", docID, "error", err)
			continue
		}

		s.metrics.IncrementEnqueued()
		queued++
	}

	s.logger.Infow("bulk submit queued documents",
		"document_type", docType, "queued", queued, "requested", len(docIDs))

	return queued, nil
}

func (s *Submitter) logAttempt(ctx context.Context, id models.Identity, payload []byte, outcome models.Outcome) {
	entry := &models.SubmissionLogEntry{
		DocumentType:   id.DocumentType,
		DocumentID:     id.DocumentID,
		RequestPayload: string(payload),
		ResponseData:   outcome.ResponseBody,
		Outcome:        logOutcome(outcome),
		InvoiceRef:     outcome.InvoiceRef,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Errorw("failed to append submission log",
			"document_type", id.DocumentType,
			"document_id", id.DocumentID,
			"error", err)
	}
}
