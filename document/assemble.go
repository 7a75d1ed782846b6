/*
assemble.go - Request validation and document assembly

PURPOSE:
  Turns an untrusted IssueRequest into a priced, validated, unpersisted
  Document. Assembly validates the counterparty, the optional parent
  linkage and every line, then aggregates document totals from the
  priced lines. It never writes anything.

VALIDATION ORDER:
  1. Module is known
  2. Party exists and is active
  3. Lines are non-empty
  4. Parent (if any) exists, belongs to the same party, and is still
     convertible
  5. Each line's catalog item resolves; pricing is fail-fast - the
     first bad line aborts the whole assembly

All failures here are terminal validation errors. The Issuer never
retries them.

SEE ALSO:
  - pricing.go: Per-line math
  - issuer.go: Persists the assembled document atomically
*/
package document

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Assemble validates request and returns a priced, unpersisted document
// with status DRAFT. Totals are recomputed from the priced lines;
// nothing caller-supplied is trusted.
func Assemble(ctx context.Context, lookup Lookup, request IssueRequest) (*Document, error) {
	if !request.Module.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, request.Module)
	}

	party, err := lookup.GetParty(ctx, request.PartyID)
	if err != nil {
		return nil, &InfrastructureError{Op: "resolve party", CanRetry: true, Err: err}
	}
	if party == nil {
		return nil, fmt.Errorf("%w: %q", ErrPartyNotFound, request.PartyID)
	}
	if !party.Active {
		return nil, fmt.Errorf("%w: %q", ErrPartyInactive, request.PartyID)
	}

	if len(request.Lines) == 0 {
		return nil, ErrEmptyDocument
	}

	if request.ParentID != "" {
		if err := validateParent(ctx, lookup, request); err != nil {
			return nil, err
		}
	}

	doc := &Document{
		Module:   request.Module,
		Status:   StatusDraft,
		PartyID:  request.PartyID,
		ParentID: request.ParentID,
		Lines:    make([]Line, 0, len(request.Lines)),

		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		Total:          decimal.Zero,
	}

	for i, raw := range request.Lines {
		item, err := lookup.GetItem(ctx, raw.ItemID)
		if err != nil {
			return nil, &InfrastructureError{Op: "resolve item", CanRetry: true, Err: err}
		}
		if item == nil {
			return nil, &LineError{Position: i, ItemID: raw.ItemID, Err: ErrItemNotFound}
		}

		line := PriceLine(raw, *item)
		line.Position = i

		doc.Lines = append(doc.Lines, line)
		doc.Subtotal = doc.Subtotal.Add(line.Subtotal)
		doc.DiscountAmount = doc.DiscountAmount.Add(line.DiscountAmount)
		doc.TaxAmount = doc.TaxAmount.Add(line.TaxAmount)
		doc.Total = doc.Total.Add(line.Total)
	}

	return doc, nil
}

func validateParent(ctx context.Context, lookup Lookup, request IssueRequest) error {
	parent, err := lookup.GetDocument(ctx, request.ParentID)
	if err != nil {
		return &InfrastructureError{Op: "resolve parent", CanRetry: true, Err: err}
	}
	if parent == nil {
		return fmt.Errorf("%w: %q", ErrParentNotFound, request.ParentID)
	}
	if parent.PartyID != request.PartyID {
		return fmt.Errorf("%w: parent %q belongs to %q", ErrPartyMismatch, request.ParentID, parent.PartyID)
	}
	if !parent.Status.Convertible() {
		return fmt.Errorf("%w: %q is %s", ErrParentNotConvertible, request.ParentID, parent.Status)
	}
	return nil
}
