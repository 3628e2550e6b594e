package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"einvoice-gateway/internal/models"
)

const defaultERPTimeout = 15 * time.Second

// Record is the slice of an ERP document the gateway cares about.
type Record struct {
	// Payload is the pre-materialized wire document, when the ERP stores
	// one (POS invoices).
	Payload json.RawMessage `json:"payload,omitempty"`
	// InvoiceRef is the authority-assigned invoice number already written
	// back to the document, if any.
	InvoiceRef string `json:"invoice_ref,omitempty"`
}

// submissionResult is the write-back body for a submission attempt.
type submissionResult struct {
	Status     string `json:"status"`
	InvoiceRef string `json:"invoice_ref,omitempty"`
	IssuedAt   string `json:"issued_at,omitempty"`
	Response   string `json:"response,omitempty"`
}

// ERPClient is a thin HTTP client for the ERP's document endpoints: fetch a
// record, build a payload, write back a result.
type ERPClient struct {
	base   string
	token  string
	client *http.Client
}

// NewERPClient creates a client for the ERP at base.
func NewERPClient(base, token string) *ERPClient {
	return &ERPClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: defaultERPTimeout},
	}
}

func (c *ERPClient) docPath(id models.Identity, suffix string) string {
	return fmt.Sprintf("%s/api/documents/%s/%s%s",
		c.base, url.PathEscape(id.DocumentType), url.PathEscape(id.DocumentID), suffix)
}

func (c *ERPClient) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// FetchDocument retrieves the document record for the identity.
func (c *ERPClient) FetchDocument(ctx context.Context, id models.Identity) (*Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docPath(id, ""), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("erp returned HTTP %d for %s", resp.StatusCode, id)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode document record: %w", err)
	}
	return &rec, nil
}

// BuildPayload asks the ERP's payload builder to render the wire document.
func (c *ERPClient) BuildPayload(ctx context.Context, id models.Identity) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.docPath(id, "/payload"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("erp payload builder returned HTTP %d for %s", resp.StatusCode, id)
	}

	return io.ReadAll(resp.Body)
}

// ApplyResult writes the outcome of a submission attempt back to the
// document: validation status, assigned invoice number, authority timestamp
// and the raw response excerpt.
func (c *ERPClient) ApplyResult(ctx context.Context, id models.Identity, outcome models.Outcome) error {
	status := "Invalid"
	if outcome.Kind == models.OutcomeSuccess {
		status = "Valid"
	}
	body, err := json.Marshal(submissionResult{
		Status:     status,
		InvoiceRef: outcome.InvoiceRef,
		IssuedAt:   outcome.IssuedAt,
		Response:   outcome.ResponseBody,
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, c.docPath(id, "/submission"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("erp result write-back returned HTTP %d for %s", resp.StatusCode, id)
	}
	return nil
}
