package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"einvoice-gateway/internal/document"
	"einvoice-gateway/internal/metrics"
	"einvoice-gateway/internal/models"
	"einvoice-gateway/internal/repository"
	"einvoice-gateway/internal/transport"
)

// Processor runs processing cycles: claim a batch, submit each job, record
// the outcome and the audit log entry.
type Processor struct {
	repo      repository.QueueRepository
	log       repository.LogRepository
	docs      document.Source
	transport transport.Submitter
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	retention time.Duration
}

// NewProcessor creates a processor. retention bounds how long Completed jobs
// are kept; zero disables the purge pass.
func NewProcessor(repo repository.QueueRepository, log repository.LogRepository, docs document.Source, t transport.Submitter, m *metrics.Metrics, logger *zap.SugaredLogger, retention time.Duration) *Processor {
	return &Processor{
		repo:      repo,
		log:       log,
		docs:      docs,
		transport: t,
		metrics:   m,
		logger:    logger,
		retention: retention,
	}
}

// RunCycle claims up to limit eligible jobs and processes them one at a
// time. A failure in one job never aborts the batch. After the batch, aged
// Completed jobs are purged.
func (p *Processor) RunCycle(ctx context.Context, limit int) (models.CycleResult, error) {
	var result models.CycleResult

	jobs, err := p.repo.ClaimBatch(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("failed to claim batch: %w", err)
	}

	for _, job := range jobs {
		outcome := p.processJob(ctx, job)

		result.Processed++
		if outcome.Kind == models.OutcomeSuccess {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if p.retention > 0 {
		purged, err := p.repo.PurgeCompletedOlderThan(ctx, time.Now().Add(-p.retention))
		if err != nil {
			p.logger.Warnw("failed to purge completed jobs", "error", err)
		} else if purged > 0 {
			p.logger.Infow("purged completed jobs", "count", purged)
		}
	}

	return result, nil
}

// processJob handles one claimed job end to end and always leaves the job in
// a consistent state. An unexpected fault is contained here and treated as a
// retryable failure.
func (p *Processor) processJob(ctx context.Context, job *models.QueueJob) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.Outcome{
				Kind:    models.OutcomeRetryable,
				Message: fmt.Sprintf("internal fault: %v", r),
			}
			p.logger.Errorw("panic while processing job", "job_id", job.ID, "panic", r)
			p.appendLog(ctx, job.Identity(), nil, outcome)
			p.finishJob(ctx, job, outcome)
		}
	}()

	id := job.Identity()
	p.logger.Infow("processing job",
		"job_id", job.ID,
		"document_type", id.DocumentType,
		"document_id", id.DocumentID,
		"retry_count", job.RetryCount)

	doc, err := p.docs.Resolve(ctx, id)
	if err != nil {
		outcome = models.Outcome{
			Kind:    models.OutcomeRetryable,
			Message: fmt.Sprintf("failed to load document: %v", err),
		}
		p.appendLog(ctx, id, nil, outcome)
		p.finishJob(ctx, job, outcome)
		return outcome
	}

	payload, err := doc.BuildPayload(ctx)
	if err != nil {
		outcome = models.Outcome{
			Kind:    models.OutcomeRetryable,
			Message: fmt.Sprintf("failed to build payload: %v", err),
		}
		p.appendLog(ctx, id, nil, outcome)
		p.finishJob(ctx, job, outcome)
		return outcome
	}

	p.metrics.IncrementSubmitted()
	outcome = p.transport.Submit(ctx, payload, id, job.RetryCount > 0)

	p.appendLog(ctx, id, payload, outcome)

	if err := doc.ApplyResult(ctx, outcome); err != nil {
		// The job state stays authoritative; the write-back is repeated on
		// the next attempt or fixed up manually.
		p.logger.Warnw("failed to write result back to document",
			"job_id", job.ID, "error", err)
	}

	p.finishJob(ctx, job, outcome)
	return outcome
}

// finishJob records the outcome on the queue store and updates counters.
func (p *Processor) finishJob(ctx context.Context, job *models.QueueJob, outcome models.Outcome) {
	if err := p.repo.RecordOutcome(ctx, job.ID, outcome); err != nil {
		p.logger.Errorw("failed to record outcome", "job_id", job.ID, "error", err)
		return
	}

	switch outcome.Kind {
	case models.OutcomeSuccess:
		p.metrics.IncrementSucceeded()
		p.logger.Infow("job completed", "job_id", job.ID, "invoice_ref", outcome.InvoiceRef)
	case models.OutcomeRetryable:
		p.metrics.IncrementRetried()
		p.logger.Warnw("job attempt failed",
			"job_id", job.ID,
			"attempt", job.RetryCount+1,
			"error", outcome.Message)
	case models.OutcomeTerminal:
		p.metrics.IncrementExhausted()
		p.logger.Errorw("job failed permanently", "job_id", job.ID, "error", outcome.Message)
	}
}

func (p *Processor) appendLog(ctx context.Context, id models.Identity, payload []byte, outcome models.Outcome) {
	entry := &models.SubmissionLogEntry{
		DocumentType:   id.DocumentType,
		DocumentID:     id.DocumentID,
		RequestPayload: string(payload),
		ResponseData:   outcome.ResponseBody,
		Outcome:        logOutcome(outcome),
		InvoiceRef:     outcome.InvoiceRef,
	}
	if err := p.log.Append(ctx, entry); err != nil {
		p.logger.Errorw("failed to append submission log",
			"document_type", id.DocumentType,
			"document_id", id.DocumentID,
			"error", err)
	}
}

// logOutcome maps a classified outcome to the audit log's taxonomy: Success
// for accepted documents, Invalid for structured rejections, Error for
// everything that never produced a validation verdict.
func logOutcome(outcome models.Outcome) string {
	switch {
	case outcome.Kind == models.OutcomeSuccess:
		return models.LogOutcomeSuccess
	case outcome.StatusCode >= 200 && outcome.StatusCode < 300:
		return models.LogOutcomeInvalid
	default:
		return models.LogOutcomeError
	}
}
