package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"einvoice-gateway/internal/models"
)

var testID = models.Identity{DocumentType: "Sales Invoice", DocumentID: "SI-001"}

func newTestClient(t *testing.T, endpoint string, opts Options) *Client {
	t.Helper()
	opts.Endpoint = endpoint
	if opts.Token == "" {
		opts.Token = "secret"
	}
	return NewClient(opts, zap.NewNop().Sugar())
}

func TestSubmit_NotConfigured(t *testing.T) {
	c := NewClient(Options{}, zap.NewNop().Sugar())

	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)
	if outcome.Kind != models.OutcomeTerminal {
		t.Errorf("expected terminal outcome, got %s", outcome.Kind)
	}
	if outcome.Message != ErrNotConfigured.Error() {
		t.Errorf("unexpected message: %q", outcome.Message)
	}
}

func TestSubmit_ValidResponse(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"validationResponse":{"status":"Valid"},"invoiceNumber":"ABC123","dated":"2026-09-01 10:00:00"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{"invoice":1}`), testID, true)

	if outcome.Kind != models.OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", outcome.Kind, outcome.Message)
	}
	if outcome.InvoiceRef != "ABC123" {
		t.Errorf("expected invoice ref ABC123, got %q", outcome.InvoiceRef)
	}
	if outcome.IssuedAt != "2026-09-01 10:00:00" {
		t.Errorf("expected issued timestamp, got %q", outcome.IssuedAt)
	}

	if got := gotHeaders.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", got)
	}
	if got := gotHeaders.Get("X-Document-Type"); got != "Sales Invoice" {
		t.Errorf("expected document type header, got %q", got)
	}
	if got := gotHeaders.Get("X-Document-Name"); got != "SI-001" {
		t.Errorf("expected document name header, got %q", got)
	}
	if got := gotHeaders.Get("X-Retry"); got != "1" {
		t.Errorf("expected retry flag 1, got %q", got)
	}
}

func TestSubmit_BusinessRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"validationResponse":{"status":"Invalid","error":"missing HS code"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable rejection by default, got %s", outcome.Kind)
	}
	if !strings.Contains(outcome.Message, "missing HS code") {
		t.Errorf("expected validator error in message, got %q", outcome.Message)
	}
}

func TestSubmit_BusinessRejectionTerminalPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"validationResponse":{"status":"Invalid"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{RejectionIsTerminal: true})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeTerminal {
		t.Errorf("expected terminal rejection under policy, got %s", outcome.Kind)
	}
}

func TestSubmit_DuplicateSubmissionKeepsReference(t *testing.T) {
	// A duplicate detection response is a rejection that still echoes the
	// originally assigned invoice number; it must be carried through.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"validationResponse":{"status":"Duplicate"},"invoiceNumber":"ABC123"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, true)

	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable, got %s", outcome.Kind)
	}
	if outcome.InvoiceRef != "ABC123" {
		t.Errorf("expected echoed invoice ref, got %q", outcome.InvoiceRef)
	}
}

func TestSubmit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable on 503, got %s", outcome.Kind)
	}
	if outcome.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", outcome.StatusCode)
	}
	if !strings.Contains(outcome.Message, "HTTP 503") {
		t.Errorf("expected status code in message, got %q", outcome.Message)
	}
}

func TestSubmit_ClientErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"malformed payload"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeTerminal {
		t.Errorf("expected terminal on 400, got %s", outcome.Kind)
	}
}

func TestSubmit_RateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable on 429, got %s", outcome.Kind)
	}
}

func TestSubmit_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c := newTestClient(t, srv.URL, Options{})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable on network error, got %s", outcome.Kind)
	}
	if outcome.Message == "" {
		t.Error("expected a diagnostic message")
	}
}

func TestSubmit_ResponseBodyIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Options{MaxResponseBytes: 100})
	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)

	if len(outcome.ResponseBody) != 100 {
		t.Errorf("expected response bounded to 100 bytes, got %d", len(outcome.ResponseBody))
	}
}

func TestSubmit_CircuitBreakerOpensOnNetworkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL, Options{})
	for i := 0; i < 5; i++ {
		outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)
		if outcome.Kind != models.OutcomeRetryable {
			t.Fatalf("attempt %d: expected retryable, got %s", i, outcome.Kind)
		}
	}

	outcome := c.Submit(context.Background(), []byte(`{}`), testID, false)
	if outcome.Kind != models.OutcomeRetryable {
		t.Errorf("expected retryable while circuit open, got %s", outcome.Kind)
	}
	if !strings.Contains(outcome.Message, "circuit open") {
		t.Errorf("expected circuit-open message, got %q", outcome.Message)
	}
}
