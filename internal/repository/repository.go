package repository

import (
	"context"
	"time"

	"einvoice-gateway/internal/models"
)

// QueueRepository defines the persistence contract for the submission queue.
// It is the only component that mutates job status.
type QueueRepository interface {
	// Enqueue inserts a Pending job for the identity, or updates the
	// existing job in place when one is already Pending or Processing.
	Enqueue(ctx context.Context, id models.Identity, priority int) (string, error)
	// ClaimBatch atomically transitions up to limit eligible Pending jobs
	// to Processing and returns them ordered by priority descending then
	// creation time ascending. Overlapping callers receive disjoint sets.
	ClaimBatch(ctx context.Context, limit int) ([]*models.QueueJob, error)
	// RecordOutcome applies the classified result of one attempt to the job.
	RecordOutcome(ctx context.Context, jobID string, outcome models.Outcome) error
	GetJob(ctx context.Context, jobID string) (*models.QueueJob, error)
	StatusSummary(ctx context.Context) (map[models.JobStatus]int, error)
	ListFailed(ctx context.Context, limit int) ([]*models.QueueJob, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
	// ResetFailedToPending bulk-transitions Failed jobs with remaining
	// retry budget back to Pending, returning the number reset.
	ResetFailedToPending(ctx context.Context) (int, error)
	// PurgeCompletedOlderThan deletes Completed jobs whose completion time
	// is before the cutoff, returning the number purged.
	PurgeCompletedOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// LogRepository is the append-only audit trail of submission attempts.
type LogRepository interface {
	Append(ctx context.Context, entry *models.SubmissionLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]*models.SubmissionLogEntry, error)
	// CountsSince groups attempts at or after t by outcome classification.
	CountsSince(ctx context.Context, t time.Time) (map[string]int, error)
	// LatestReference returns the most recent non-empty authority-assigned
	// reference for the identity, or "" when none exists.
	LatestReference(ctx context.Context, id models.Identity) (string, error)
}
