// Package transport performs single submission attempts against the tax
// authority's e-invoicing API and classifies every outcome so the queue can
// decide between retry and termination.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"einvoice-gateway/internal/models"
)

// ErrNotConfigured is returned when endpoint or token are missing; no
// network call is attempted in that case.
var ErrNotConfigured = errors.New("api endpoint and authorization token not configured")

const clientHeader = "ERP E-Invoicing Gateway"

// Submitter performs one submission attempt.
type Submitter interface {
	Submit(ctx context.Context, payload []byte, id models.Identity, isRetry bool) models.Outcome
}

// Options configures the FBR client.
type Options struct {
	Endpoint       string
	Token          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// MaxResponseBytes bounds the captured response excerpt.
	MaxResponseBytes int
	// RejectionIsTerminal makes a structured business rejection terminal
	// instead of consuming retry budget.
	RejectionIsTerminal bool
}

// Client submits payloads to the FBR endpoint over HTTP. A circuit breaker
// short-circuits attempts while the endpoint is failing hard.
type Client struct {
	opts    Options
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewClient creates a transport client. The configuration is injected here;
// there is no ambient settings lookup at submission time.
func NewClient(opts Options, logger *zap.SugaredLogger) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 4096
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "fbr-api",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 60 * time.Second,
	})

	return &Client{
		opts: opts,
		client: &http.Client{
			Timeout: opts.ConnectTimeout + opts.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
			},
		},
		breaker: breaker,
		logger:  logger,
	}
}

// fbrResponse is the authority's response envelope: a validation status
// plus, on acceptance, the assigned invoice number and timestamp.
type fbrResponse struct {
	ValidationResponse struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"validationResponse"`
	InvoiceNumber string `json:"invoiceNumber"`
	Dated         string `json:"dated"`
}

// Submit performs exactly one network attempt and classifies the result.
// Missing configuration is terminal and never reaches the network.
func (c *Client) Submit(ctx context.Context, payload []byte, id models.Identity, isRetry bool) models.Outcome {
	if c.opts.Endpoint == "" || c.opts.Token == "" {
		return models.Outcome{
			Kind:    models.OutcomeTerminal,
			Message: ErrNotConfigured.Error(),
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.attempt(ctx, payload, id, isRetry)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.Outcome{
				Kind:    models.OutcomeRetryable,
				Message: "submission endpoint circuit open, attempt skipped",
			}
		}
		// Network-level failure: connection refused, DNS, timeout.
		return models.Outcome{
			Kind:         models.OutcomeRetryable,
			Message:      fmt.Sprintf("submission request failed: %v", err),
			ResponseBody: err.Error(),
		}
	}

	return res.(models.Outcome)
}

// attempt runs the HTTP exchange. It returns an error only for transport
// faults; any received response is classified into an Outcome so the
// breaker counts hard failures, not business rejections.
func (c *Client) attempt(ctx context.Context, payload []byte, id models.Identity, isRetry bool) (models.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.Outcome{}, err
	}

	retryFlag := "0"
	if isRetry {
		retryFlag = "1"
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Document-Type", id.DocumentType)
	req.Header.Set("X-Document-Name", id.DocumentID)
	req.Header.Set("X-Client", clientHeader)
	req.Header.Set("X-Retry", retryFlag)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Outcome{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.opts.MaxResponseBytes)))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to read response: %w", err)
	}

	return c.classify(resp.StatusCode, body, id), nil
}

func (c *Client) classify(statusCode int, body []byte, id models.Identity) models.Outcome {
	excerpt := string(body)

	var parsed fbrResponse
	_ = json.Unmarshal(body, &parsed)

	switch {
	case statusCode >= 200 && statusCode < 300:
		if parsed.ValidationResponse.Status == "Valid" {
			return models.Outcome{
				Kind:         models.OutcomeSuccess,
				StatusCode:   statusCode,
				InvoiceRef:   parsed.InvoiceNumber,
				IssuedAt:     parsed.Dated,
				ResponseBody: excerpt,
			}
		}
		// Structured business rejection: the authority understood the
		// document and refused it.
		kind := models.OutcomeRetryable
		if c.opts.RejectionIsTerminal {
			kind = models.OutcomeTerminal
		}
		msg := parsed.ValidationResponse.Error
		if msg == "" {
			msg = parsed.ValidationResponse.Status
		}
		if msg == "" {
			msg = "unspecified rejection"
		}
		return models.Outcome{
			Kind:         kind,
			StatusCode:   statusCode,
			InvoiceRef:   parsed.InvoiceNumber,
			Message:      fmt.Sprintf("validation failed: %s", msg),
			ResponseBody: excerpt,
		}

	case statusCode == http.StatusTooManyRequests:
		return models.Outcome{
			Kind:         models.OutcomeRetryable,
			StatusCode:   statusCode,
			Message:      "rate limited by submission endpoint",
			ResponseBody: excerpt,
		}

	case statusCode >= 400 && statusCode < 500:
		// Auth or malformed-payload class: resubmitting unchanged cannot
		// succeed.
		c.logger.Warnw("terminal response from submission endpoint",
			"status_code", statusCode,
			"document_type", id.DocumentType,
			"document_id", id.DocumentID)
		return models.Outcome{
			Kind:         models.OutcomeTerminal,
			StatusCode:   statusCode,
			Message:      fmt.Sprintf("submission rejected with HTTP %d: %s", statusCode, truncate(excerpt, 500)),
			ResponseBody: excerpt,
		}

	default:
		return models.Outcome{
			Kind:         models.OutcomeRetryable,
			StatusCode:   statusCode,
			Message:      fmt.Sprintf("submission endpoint returned HTTP %d: %s", statusCode, truncate(excerpt, 500)),
			ResponseBody: excerpt,
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
