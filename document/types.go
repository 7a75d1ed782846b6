/*
Package document provides the core document issuance engine.

PURPOSE:
  This package contains the types and algorithms for minting numbered
  business documents: pricing line items, validating and assembling a
  document from a request, and atomically issuing it (number allocation,
  header + line persistence, and cross-document side effects) inside a
  single store transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Module: Which kind of document (sales order, quotation, ...)
  - Status: Document lifecycle state; issuance only ever produces DRAFT
  - Document/Line: The persisted document graph with derived totals
  - RawLine/IssueRequest: Caller-supplied input, never trusted for totals
  - Party/CatalogItem: External references that must resolve at issue time

DESIGN PRINCIPLES:
  1. Precision: All money fields are decimal.Decimal, never float64
  2. Derivation: Totals are always recomputed server-side from lines
  3. Immutability: A document's number never changes once assigned
  4. Atomicity: Header, lines and side effects commit together or not at all

SEE ALSO:
  - pricing.go: Per-line economics (clamping, discount, tax)
  - assemble.go: Request validation and total aggregation
  - issuer.go: Transactional issuance and number allocation
  - errors.go: Error taxonomy
*/
package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MODULE - Document type identifiers
// =============================================================================

type Module string

const (
	ModuleSalesOrder    Module = "SalesOrder"
	ModuleQuotation     Module = "Quotation"
	ModuleInvoice       Module = "Invoice"
	ModulePurchaseOrder Module = "PurchaseOrder"
)

// Modules lists every document type the engine issues.
func Modules() []Module {
	return []Module{ModuleSalesOrder, ModuleQuotation, ModuleInvoice, ModulePurchaseOrder}
}

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	switch m {
	case ModuleSalesOrder, ModuleQuotation, ModuleInvoice, ModulePurchaseOrder:
		return true
	}
	return false
}

// =============================================================================
// STATUS - Document lifecycle
// =============================================================================

// Status is the document lifecycle state. Issuance only ever produces
// StatusDraft; later transitions belong to workflow code outside this
// engine, except the parent-quotation conversion applied by the Issuer.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDelivered  Status = "DELIVERED"
	StatusInvoiced   Status = "INVOICED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"

	// StatusConverted marks a quotation that has been turned into a
	// sales order. Terminal: a converted quotation cannot be converted
	// again or cancelled.
	StatusConverted Status = "CONVERTED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusConverted
}

// Convertible reports whether a parent document in state s is still
// eligible to spawn a child document (quotation -> sales order).
// Converted, cancelled and completed parents fail closed.
func (s Status) Convertible() bool {
	return !s.Terminal()
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DocumentID string
type PartyID string
type ItemID string

// =============================================================================
// DOCUMENT GRAPH
// =============================================================================

// Document is a numbered business record: header, ordered lines and
// derived totals. Number is immutable once assigned by the Issuer.
type Document struct {
	ID       DocumentID
	Module   Module
	Number   string
	Bucket   string
	Counter  int64
	Status   Status
	PartyID  PartyID
	ParentID DocumentID // optional originating document

	Lines []Line

	// Derived server-side from Lines; caller-supplied totals are ignored.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal

	IssuedAt  time.Time
	CreatedAt time.Time
}

// Line is a priced document line. Owned by its Document; it has no
// independent lifecycle.
type Line struct {
	ID       string
	ItemID   ItemID
	Position int

	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal

	// Derived per pricing.go, in order: subtotal, discount, taxable
	// base, tax, total. Tax applies after discount.
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// =============================================================================
// REQUEST INPUT - Untrusted caller data
// =============================================================================

// RawLine is a caller-supplied line before pricing. UnitPrice is optional;
// when nil the catalog item's standard price applies.
type RawLine struct {
	ItemID      ItemID
	Quantity    decimal.Decimal
	UnitPrice   *decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
}

// IssueRequest is the issue-document entry point payload.
type IssueRequest struct {
	Module   Module
	PartyID  PartyID
	ParentID DocumentID // optional
	Lines    []RawLine
}

// Receipt is what a successful issuance returns to the caller.
type Receipt struct {
	DocumentID DocumentID
	Number     string
	Total      decimal.Decimal
}

// =============================================================================
// EXTERNAL REFERENCES
// =============================================================================

// Party is a counterparty (customer or vendor).
type Party struct {
	ID        PartyID
	Name      string
	Kind      string // "customer" or "vendor"
	Active    bool
	CreatedAt time.Time
}

// CatalogItem is a sellable/purchasable item with a standard price.
type CatalogItem struct {
	ID            ItemID
	Name          string
	StandardPrice decimal.Decimal
	Active        bool
	CreatedAt     time.Time
}
