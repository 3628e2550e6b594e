package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"einvoice-gateway/internal/models"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// SQLiteRepository implements QueueRepository and LogRepository on SQLite.
type SQLiteRepository struct {
	db         *sql.DB
	maxRetries int
}

// NewSQLiteRepository opens (or creates) the database and initializes the
// schema. maxRetries is the retry budget applied to all jobs.
func NewSQLiteRepository(dbPath string, maxRetries int) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, maxRetries: maxRetries}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// MaxRetries returns the configured retry budget.
func (r *SQLiteRepository) MaxRetries() int {
	return r.maxRetries
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_jobs (
		id TEXT PRIMARY KEY,
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		priority INTEGER NOT NULL DEFAULT 5,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		last_attempt_at INTEGER,
		completed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_jobs_status ON queue_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_queue_jobs_identity ON queue_jobs(document_type, document_id);
	CREATE INDEX IF NOT EXISTS idx_queue_jobs_claim ON queue_jobs(status, priority, created_at);

	CREATE TABLE IF NOT EXISTS submission_logs (
		id TEXT PRIMARY KEY,
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		request_payload TEXT NOT NULL DEFAULT '',
		response_data TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		invoice_ref TEXT NOT NULL DEFAULT '',
		submitted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submission_logs_identity ON submission_logs(document_type, document_id);
	CREATE INDEX IF NOT EXISTS idx_submission_logs_submitted ON submission_logs(submitted_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

const jobColumns = `id, document_type, document_id, status, priority, retry_count,
	       last_error, last_attempt_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.QueueJob, error) {
	var job models.QueueJob
	var lastAttemptAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&job.ID,
		&job.DocumentType,
		&job.DocumentID,
		&job.Status,
		&job.Priority,
		&job.RetryCount,
		&job.LastError,
		&lastAttemptAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if lastAttemptAt.Valid {
		t := time.Unix(lastAttemptAt.Int64, 0)
		job.LastAttemptAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}

	return &job, nil
}

// Enqueue inserts a new Pending job, or updates the active job for the
// identity in place. A transaction keeps concurrent enqueues for the same
// identity from producing duplicate active jobs.
func (r *SQLiteRepository) Enqueue(ctx context.Context, id models.Identity, priority int) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM queue_jobs
		WHERE document_type = ? AND document_id = ? AND status IN ('PENDING', 'PROCESSING')
		LIMIT 1
	`, id.DocumentType, id.DocumentID).Scan(&existingID)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to check for active job: %w", err)
	}

	if existingID != "" {
		// Re-request for an active identity: reset the error, bump the
		// retry bookkeeping, keep the job Pending.
		_, err = tx.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = 'PENDING',
			    priority = ?,
			    last_error = '',
			    retry_count = retry_count + 1,
			    last_attempt_at = ?,
			    updated_at = ?
			WHERE id = ?
		`, priority, now.Unix(), now.Unix(), existingID)
		if err != nil {
			return "", fmt.Errorf("failed to update active job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		return existingID, nil
	}

	jobID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_jobs (id, document_type, document_id, status, priority, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, 'PENDING', ?, 0, ?, ?)
	`, jobID, id.DocumentType, id.DocumentID, priority, now.Unix(), now.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return jobID, nil
}

// ClaimBatch selects eligible Pending jobs and transitions them to
// Processing inside one transaction. The conditional update guards against
// a second caller claiming the same job.
func (r *SQLiteRepository) ClaimBatch(ctx context.Context, limit int) ([]*models.QueueJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE status = 'PENDING' AND retry_count < ?
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`, r.maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible jobs: %w", err)
	}

	var candidates []*models.QueueJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		candidates = append(candidates, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	rows.Close()

	now := time.Now()
	var claimed []*models.QueueJob
	for _, job := range candidates {
		res, err := tx.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = 'PROCESSING', updated_at = ?
			WHERE id = ? AND status = 'PENDING'
		`, now.Unix(), job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			// Claimed by a concurrent caller between select and update.
			continue
		}
		job.Status = models.StatusProcessing
		job.UpdatedAt = now
		claimed = append(claimed, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return claimed, nil
}

// RecordOutcome applies one attempt's classified result as a single atomic
// update per the outcome kind.
func (r *SQLiteRepository) RecordOutcome(ctx context.Context, jobID string, outcome models.Outcome) error {
	now := time.Now().Unix()

	var res sql.Result
	var err error

	switch outcome.Kind {
	case models.OutcomeSuccess:
		res, err = r.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = 'COMPLETED',
			    last_error = '',
			    last_attempt_at = ?,
			    completed_at = ?,
			    updated_at = ?
			WHERE id = ?
		`, now, now, now, jobID)
	case models.OutcomeRetryable:
		// Increment-and-decide in one statement: the job terminates as
		// Failed exactly when the retry budget is exhausted.
		res, err = r.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET retry_count = retry_count + 1,
			    status = CASE WHEN retry_count + 1 >= ? THEN 'FAILED' ELSE 'PENDING' END,
			    last_error = ?,
			    last_attempt_at = ?,
			    updated_at = ?
			WHERE id = ?
		`, r.maxRetries, outcome.Message, now, now, jobID)
	case models.OutcomeTerminal:
		res, err = r.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET status = 'FAILED',
			    last_error = ?,
			    last_attempt_at = ?,
			    updated_at = ?
			WHERE id = ?
		`, outcome.Message, now, now, jobID)
	default:
		return fmt.Errorf("unknown outcome kind: %s", outcome.Kind)
	}

	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by ID.
func (r *SQLiteRepository) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE id = ?
	`, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetActiveJob returns the Pending or Processing job for the identity, or
// nil when none exists.
func (r *SQLiteRepository) GetActiveJob(ctx context.Context, id models.Identity) (*models.QueueJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE document_type = ? AND document_id = ? AND status IN ('PENDING', 'PROCESSING')
		LIMIT 1
	`, id.DocumentType, id.DocumentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, nil
}

// StatusSummary returns job counts per status, including zero counts.
func (r *SQLiteRepository) StatusSummary(ctx context.Context) (map[models.JobStatus]int, error) {
	counts := map[models.JobStatus]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM queue_jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return counts, nil
}

// ListFailed returns the most recently failed jobs with their error detail.
func (r *SQLiteRepository) ListFailed(ctx context.Context, limit int) ([]*models.QueueJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE status = 'FAILED'
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.QueueJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failed jobs: %w", err)
	}

	return jobs, nil
}

// CountByStatus returns the number of jobs in the given status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_jobs WHERE status = ?
	`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// ResetFailedToPending is the manual recovery action: Failed jobs that still
// have retry budget go back to Pending with a cleared error.
func (r *SQLiteRepository) ResetFailedToPending(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = 'PENDING', last_error = '', updated_at = ?
		WHERE status = 'FAILED' AND retry_count < ?
	`, time.Now().Unix(), r.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// PurgeCompletedOlderThan deletes Completed jobs finished before the cutoff.
func (r *SQLiteRepository) PurgeCompletedOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE status = 'COMPLETED' AND completed_at IS NOT NULL AND completed_at < ?
	`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// Append writes one immutable submission log entry.
func (r *SQLiteRepository) Append(ctx context.Context, entry *models.SubmissionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submission_logs (id, document_type, document_id, request_payload, response_data, outcome, invoice_ref, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.DocumentType, entry.DocumentID, entry.RequestPayload,
		entry.ResponseData, entry.Outcome, entry.InvoiceRef, entry.SubmittedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append submission log: %w", err)
	}
	return nil
}

// ListRecent returns the most recent log entries, newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]*models.SubmissionLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_type, document_id, request_payload, response_data, outcome, invoice_ref, submitted_at
		FROM submission_logs
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.SubmissionLogEntry
	for rows.Next() {
		var entry models.SubmissionLogEntry
		var submittedAt int64
		err := rows.Scan(
			&entry.ID,
			&entry.DocumentType,
			&entry.DocumentID,
			&entry.RequestPayload,
			&entry.ResponseData,
			&entry.Outcome,
			&entry.InvoiceRef,
			&submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission log: %w", err)
		}
		entry.SubmittedAt = time.Unix(submittedAt, 0)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission logs: %w", err)
	}

	return entries, nil
}

// CountsSince groups attempts at or after t by outcome classification.
func (r *SQLiteRepository) CountsSince(ctx context.Context, t time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*) FROM submission_logs
		WHERE submitted_at >= ?
		GROUP BY outcome
	`, t.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query submission counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan submission count: %w", err)
		}
		counts[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission counts: %w", err)
	}

	return counts, nil
}

// LatestReference returns the newest authority-assigned reference recorded
// for the identity, or "" when the document was never accepted.
func (r *SQLiteRepository) LatestReference(ctx context.Context, id models.Identity) (string, error) {
	var ref string
	err := r.db.QueryRowContext(ctx, `
		SELECT invoice_ref FROM submission_logs
		WHERE document_type = ? AND document_id = ? AND invoice_ref != ''
		ORDER BY submitted_at DESC
		LIMIT 1
	`, id.DocumentType, id.DocumentID).Scan(&ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get latest reference: %w", err)
	}
	return ref, nil
}
