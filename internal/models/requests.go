package models

// EnqueueRequest represents a request to queue a document for submission.
type EnqueueRequest struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	Priority     *int   `json:"priority,omitempty"`
}

// SubmitRequest represents a synchronous single-document submission.
type SubmitRequest struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	IsRetry      bool   `json:"is_retry,omitempty"`
}

// BulkSubmitRequest queues several documents of one type.
type BulkSubmitRequest struct {
	DocumentType string   `json:"document_type"`
	DocumentIDs  []string `json:"document_ids"`
}

// CycleResult reports what one processing cycle did.
type CycleResult struct {
	Processed int `json:"processed_count"`
	Succeeded int `json:"succeeded_count"`
	Failed    int `json:"failed_count"`
}

// QueueStatus is the operational snapshot returned by the status endpoint.
type QueueStatus struct {
	Counts     map[JobStatus]int `json:"status_counts"`
	FailedJobs []*QueueJob       `json:"failed_items"`
}
