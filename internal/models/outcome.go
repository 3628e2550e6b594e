package models

import "time"

// OutcomeKind classifies the result of one submission attempt.
type OutcomeKind string

const (
	// OutcomeSuccess: the authority accepted and validated the document.
	OutcomeSuccess OutcomeKind = "SUCCESS"
	// OutcomeRetryable: transient fault (network, timeout, 5xx, rate limit)
	// or a business rejection under the retryable policy. Consumes one unit
	// of retry budget.
	OutcomeRetryable OutcomeKind = "RETRYABLE"
	// OutcomeTerminal: the attempt can never succeed unchanged (auth or
	// malformed-payload class 4xx, missing configuration).
	OutcomeTerminal OutcomeKind = "TERMINAL"
)

// Outcome is the classified result of a submission attempt, carried from
// the transport through the processor into the queue store and the log.
type Outcome struct {
	Kind       OutcomeKind
	Message    string
	StatusCode int
	// InvoiceRef is the authority-assigned invoice number, set on success
	// and on duplicate-submission responses that echo the original number.
	InvoiceRef string
	// IssuedAt is the authority's timestamp for the accepted invoice.
	IssuedAt string
	// ResponseBody is the raw response excerpt kept for the audit log,
	// truncated by the transport to a bounded size.
	ResponseBody string
}

// SubmissionLogEntry is one immutable audit record of a submission attempt.
type SubmissionLogEntry struct {
	ID             string    `json:"id"`
	DocumentType   string    `json:"document_type"`
	DocumentID     string    `json:"document_id"`
	RequestPayload string    `json:"request_payload"`
	ResponseData   string    `json:"response_data"`
	Outcome        string    `json:"outcome"`
	InvoiceRef     string    `json:"invoice_ref,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Log outcome classifications, mirroring the authority's response taxonomy.
const (
	LogOutcomeSuccess = "Success"
	LogOutcomeInvalid = "Invalid"
	LogOutcomeError   = "Error"
)
