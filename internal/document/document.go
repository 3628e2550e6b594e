// Package document models the submittable-document capability: everything
// the queue needs from a document is its identity, a wire payload, and a
// place to record the submission result. The ERP remains the system of
// record; this package only talks to it.
package document

import (
	"context"
	"errors"
	"fmt"

	"einvoice-gateway/internal/models"
)

// Known document types.
const (
	TypeSalesInvoice = "Sales Invoice"
	TypePOSInvoice   = "POS Invoice"
)

// ErrNoPayload is returned when a POS invoice has no materialized payload.
var ErrNoPayload = errors.New("no payload found, regenerate the payload on the source document")

// ErrUnknownType is returned for document types without a variant.
var ErrUnknownType = errors.New("unknown document type")

// Document is one submittable document. The queue and processor depend only
// on this capability, never on a concrete document kind.
type Document interface {
	Identity() models.Identity
	// Reference returns the authority-assigned invoice number already
	// recorded on the document, or "" when it was never accepted.
	Reference() string
	// BuildPayload produces the wire JSON for one submission attempt.
	BuildPayload(ctx context.Context) ([]byte, error)
	// ApplyResult writes the submission result back to the source document.
	ApplyResult(ctx context.Context, outcome models.Outcome) error
}

// Source resolves a document identity to its capability implementation.
type Source interface {
	Resolve(ctx context.Context, id models.Identity) (Document, error)
}

// Resolver maps document types to their variants, backed by the ERP client.
type Resolver struct {
	erp *ERPClient
}

// NewResolver creates a resolver over the given ERP client.
func NewResolver(erp *ERPClient) *Resolver {
	return &Resolver{erp: erp}
}

// Resolve fetches the document record and wraps it in the variant for its
// type.
func (r *Resolver) Resolve(ctx context.Context, id models.Identity) (Document, error) {
	rec, err := r.erp.FetchDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}

	switch id.DocumentType {
	case TypeSalesInvoice:
		return &salesInvoice{id: id, rec: rec, erp: r.erp}, nil
	case TypePOSInvoice:
		return &posInvoice{id: id, rec: rec, erp: r.erp}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, id.DocumentType)
	}
}

// salesInvoice builds its payload on demand through the ERP's payload
// builder.
type salesInvoice struct {
	id  models.Identity
	rec *Record
	erp *ERPClient
}

func (d *salesInvoice) Identity() models.Identity { return d.id }

func (d *salesInvoice) Reference() string { return d.rec.InvoiceRef }

func (d *salesInvoice) BuildPayload(ctx context.Context) ([]byte, error) {
	return d.erp.BuildPayload(ctx, d.id)
}

func (d *salesInvoice) ApplyResult(ctx context.Context, outcome models.Outcome) error {
	return d.erp.ApplyResult(ctx, d.id, outcome)
}

// posInvoice carries a payload materialized when the invoice was created;
// submission fails fast when it is missing.
type posInvoice struct {
	id  models.Identity
	rec *Record
	erp *ERPClient
}

func (d *posInvoice) Identity() models.Identity { return d.id }

func (d *posInvoice) Reference() string { return d.rec.InvoiceRef }

func (d *posInvoice) BuildPayload(ctx context.Context) ([]byte, error) {
	if len(d.rec.Payload) == 0 {
		return nil, ErrNoPayload
	}
	return d.rec.Payload, nil
}

func (d *posInvoice) ApplyResult(ctx context.Context, outcome models.Outcome) error {
	return d.erp.ApplyResult(ctx, d.id, outcome)
}
