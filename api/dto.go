/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FIELDS:
  decimal.Decimal marshals as a quoted string, which keeps amounts exact
  on the wire. Clients may send quantities and percentages as JSON
  numbers or strings; both decode.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON shape reused for numbering admin
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/document-engine/factory"
)

// =============================================================================
// ISSUANCE
// =============================================================================

// IssueLineRequest is one raw line of an issue request. UnitPrice is
// optional; when omitted the catalog item's standard price applies.
type IssueLineRequest struct {
	ItemID      string           `json:"item_id"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountPct decimal.Decimal  `json:"discount_pct"`
	TaxPct      decimal.Decimal  `json:"tax_pct"`
}

// IssueDocumentRequest is the issue-document entry point payload.
type IssueDocumentRequest struct {
	Module   string             `json:"module"`
	PartyID  string             `json:"party_id"`
	ParentID string             `json:"parent_id,omitempty"`
	Lines    []IssueLineRequest `json:"lines"`
}

// ReceiptDTO is returned after a successful issuance.
type ReceiptDTO struct {
	DocumentID string          `json:"document_id"`
	Number     string          `json:"number"`
	Total      decimal.Decimal `json:"total"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// LineDTO represents a priced line in API responses.
type LineDTO struct {
	ID             string          `json:"id"`
	Position       int             `json:"position"`
	ItemID         string          `json:"item_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountPct    decimal.Decimal `json:"discount_pct"`
	TaxPct         decimal.Decimal `json:"tax_pct"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// DocumentDTO represents a document in API responses.
type DocumentDTO struct {
	ID             string          `json:"id"`
	Module         string          `json:"module"`
	Number         string          `json:"number"`
	Status         string          `json:"status"`
	PartyID        string          `json:"party_id"`
	ParentID       string          `json:"parent_id,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	IssuedAt       string          `json:"issued_at"`
	Lines          []LineDTO       `json:"lines,omitempty"`
}

// =============================================================================
// NUMBERING ADMIN
// =============================================================================

// PolicyDTO represents a numbering policy in admin API responses.
type PolicyDTO struct {
	factory.PolicyJSON
	Version    int   `json:"version"`
	LastIssued int64 `json:"last_issued"`
}

// ResetCounterRequest triggers an audited counter reset. Actor and
// reason are mandatory; bucket defaults to the policy's current bucket.
type ResetCounterRequest struct {
	Bucket string `json:"bucket,omitempty"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// CounterResetDTO is one audit record of a counter reset.
type CounterResetDTO struct {
	ID            string `json:"id"`
	Module        string `json:"module"`
	Bucket        string `json:"bucket"`
	PreviousValue int64  `json:"previous_value"`
	NewValue      int64  `json:"new_value"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
	CreatedAt     string `json:"created_at"`
}

// =============================================================================
// PARTIES AND CATALOG
// =============================================================================

// PartyDTO represents a counterparty.
type PartyDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreatePartyRequest creates or updates a counterparty.
type CreatePartyRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Active *bool  `json:"active,omitempty"`
}

// ItemDTO represents a catalog item.
type ItemDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	StandardPrice decimal.Decimal `json:"standard_price"`
	Active        bool            `json:"active"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// CreateItemRequest creates or updates a catalog item.
type CreateItemRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	StandardPrice decimal.Decimal `json:"standard_price"`
	Active        *bool           `json:"active,omitempty"`
}

// ErrorResponse is the error payload for every failing request.
// Kind is a stable machine-readable error identifier.
type ErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Details  string `json:"details,omitempty"`
	CanRetry bool   `json:"can_retry,omitempty"`
}
