package models

import "time"

// JobStatus represents the state of a queue job
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Identity is the logical key of a submittable document. At most one
// non-terminal job exists per identity at any time.
type Identity struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
}

func (id Identity) String() string {
	return id.DocumentType + "/" + id.DocumentID
}

// QueueJob represents one unit of work: submit this document to the tax
// authority. Lifecycle: PENDING -> PROCESSING -> COMPLETED | FAILED, with
// PROCESSING -> PENDING on a retryable failure while retry budget remains.
type QueueJob struct {
	ID            string     `json:"id"`
	DocumentType  string     `json:"document_type"`
	DocumentID    string     `json:"document_id"`
	Status        JobStatus  `json:"status"`
	Priority      int        `json:"priority"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Identity returns the job's document identity.
func (j *QueueJob) Identity() Identity {
	return Identity{DocumentType: j.DocumentType, DocumentID: j.DocumentID}
}

// Terminal reports whether the job has reached a terminal state.
func (j *QueueJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
