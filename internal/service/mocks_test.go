package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"einvoice-gateway/internal/document"
	"einvoice-gateway/internal/models"
	"einvoice-gateway/internal/repository"
)

// mockRepo is an in-memory QueueRepository with the same transition rules as
// the SQLite implementation.
type mockRepo struct {
	mu         sync.Mutex
	jobs       map[string]*models.QueueJob
	maxRetries int
	nextID     int

	enqueueErr error
	claimErr   error
}

func newMockRepo(maxRetries int) *mockRepo {
	return &mockRepo{
		jobs:       make(map[string]*models.QueueJob),
		maxRetries: maxRetries,
	}
}

func (m *mockRepo) Enqueue(ctx context.Context, id models.Identity, priority int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enqueueErr != nil {
		return "", m.enqueueErr
	}

	for _, job := range m.jobs {
		if job.Identity() == id && !job.Terminal() {
			job.Status = models.StatusPending
			job.Priority = priority
			job.LastError = ""
			job.RetryCount++
			return job.ID, nil
		}
	}

	m.nextID++
	jobID := fmt.Sprintf("job-%d", m.nextID)
	m.jobs[jobID] = &models.QueueJob{
		ID:           jobID,
		DocumentType: id.DocumentType,
		DocumentID:   id.DocumentID,
		Status:       models.StatusPending,
		Priority:     priority,
		CreatedAt:    time.Now().Add(time.Duration(m.nextID) * time.Millisecond),
	}
	return jobID, nil
}

func (m *mockRepo) ClaimBatch(ctx context.Context, limit int) ([]*models.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimErr != nil {
		return nil, m.claimErr
	}

	var eligible []*models.QueueJob
	for _, job := range m.jobs {
		if job.Status == models.StatusPending && job.RetryCount < m.maxRetries {
			eligible = append(eligible, job)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]*models.QueueJob, 0, len(eligible))
	for _, job := range eligible {
		job.Status = models.StatusProcessing
		jobCopy := *job
		claimed = append(claimed, &jobCopy)
	}
	return claimed, nil
}

func (m *mockRepo) RecordOutcome(ctx context.Context, jobID string, outcome models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return repository.ErrJobNotFound
	}

	now := time.Now()
	job.LastAttemptAt = &now

	switch outcome.Kind {
	case models.OutcomeSuccess:
		job.Status = models.StatusCompleted
		job.LastError = ""
		job.CompletedAt = &now
	case models.OutcomeRetryable:
		job.RetryCount++
		job.LastError = outcome.Message
		if job.RetryCount >= m.maxRetries {
			job.Status = models.StatusFailed
		} else {
			job.Status = models.StatusPending
		}
	case models.OutcomeTerminal:
		job.Status = models.StatusFailed
		job.LastError = outcome.Message
	}
	return nil
}

func (m *mockRepo) GetJob(ctx context.Context, jobID string) (*models.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	jobCopy := *job
	return &jobCopy, nil
}

func (m *mockRepo) StatusSummary(ctx context.Context) (map[models.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.JobStatus]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *mockRepo) ListFailed(ctx context.Context, limit int) ([]*models.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []*models.QueueJob
	for _, job := range m.jobs {
		if job.Status == models.StatusFailed && len(failed) < limit {
			jobCopy := *job
			failed = append(failed, &jobCopy)
		}
	}
	return failed, nil
}

func (m *mockRepo) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, job := range m.jobs {
		if job.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) ResetFailedToPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, job := range m.jobs {
		if job.Status == models.StatusFailed && job.RetryCount < m.maxRetries {
			job.Status = models.StatusPending
			job.LastError = ""
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) PurgeCompletedOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, job := range m.jobs {
		if job.Status == models.StatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			count++
		}
	}
	return count, nil
}

// mockLog is an in-memory append-only submission log.
type mockLog struct {
	mu      sync.Mutex
	entries []*models.SubmissionLogEntry
}

func (m *mockLog) Append(ctx context.Context, entry *models.SubmissionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLog) ListRecent(ctx context.Context, limit int) ([]*models.SubmissionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if n > limit {
		n = limit
	}
	out := make([]*models.SubmissionLogEntry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *mockLog) CountsSince(ctx context.Context, t time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range m.entries {
		if !e.SubmittedAt.Before(t) {
			counts[e.Outcome]++
		}
	}
	return counts, nil
}

func (m *mockLog) LatestReference(ctx context.Context, id models.Identity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.DocumentType == id.DocumentType && e.DocumentID == id.DocumentID && e.InvoiceRef != "" {
			return e.InvoiceRef, nil
		}
	}
	return "", nil
}

// stubDocument is a canned document capability.
type stubDocument struct {
	id       models.Identity
	ref      string
	payload  []byte
	buildErr error

	mu      sync.Mutex
	applied []models.Outcome
}

func (d *stubDocument) Identity() models.Identity { return d.id }

func (d *stubDocument) Reference() string { return d.ref }

func (d *stubDocument) BuildPayload(ctx context.Context) ([]byte, error) {
	if d.buildErr != nil {
		return nil, d.buildErr
	}
	return d.payload, nil
}

func (d *stubDocument) ApplyResult(ctx context.Context, outcome models.Outcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, outcome)
	return nil
}

// stubSource resolves identities to stub documents.
type stubSource struct {
	docs        map[models.Identity]*stubDocument
	resolveErrs map[models.Identity]error
}

func newStubSource(docs ...*stubDocument) *stubSource {
	s := &stubSource{
		docs:        make(map[models.Identity]*stubDocument),
		resolveErrs: make(map[models.Identity]error),
	}
	for _, d := range docs {
		s.docs[d.id] = d
	}
	return s
}

func (s *stubSource) Resolve(ctx context.Context, id models.Identity) (document.Document, error) {
	if err, ok := s.resolveErrs[id]; ok {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	return doc, nil
}

// stubTransport returns canned outcomes, optionally keyed by identity.
type stubTransport struct {
	mu       sync.Mutex
	outcome  models.Outcome
	byID     map[models.Identity]models.Outcome
	panicFor map[models.Identity]bool
	calls    int
}

func (s *stubTransport) Submit(ctx context.Context, payload []byte, id models.Identity, isRetry bool) models.Outcome {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panicFor[id] {
		panic("transport blew up")
	}
	if o, ok := s.byID[id]; ok {
		return o
	}
	return s.outcome
}
