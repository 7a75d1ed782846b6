/*
store.go - Persistence interfaces for the issuance engine

PURPOSE:
  Defines the interface between issuance logic and the database. The
  engine never talks SQL; it validates, prices and allocates against
  these interfaces, and the store enforces the final uniqueness arbiter
  (a unique index on the rendered document number).

KEY INTERFACES:
  Lookup:  Read-side references resolved during assembly
  Store:   Lookup plus the writes performed inside an issuance
  TxStore: Store plus WithTx for atomic multi-write issuance

TRANSACTION CONTRACT:
  Every mutation of documents, lines and sequence counters happens
  inside a WithTx closure. The Store passed to the closure reads with
  the transaction's isolation, so the counter read in AllocateCounter
  participates in the same transaction that inserts the document.
  A duplicate-number insert MUST surface ErrDuplicateNumber so the
  Issuer can retry with a fresh read.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - document/store: In-memory store for tests and dev

SEE ALSO:
  - issuer.go: The only writer through these interfaces
  - store/sqlite/sqlite.go: Concrete implementation
*/
package document

import (
	"context"

	"github.com/warp/document-engine/numbering"
)

// =============================================================================
// LOOKUP - References resolved during assembly
// =============================================================================

// Lookup resolves external references at issue time. Implementations
// return (nil, nil) for a missing record; the engine converts that into
// the matching validation error.
type Lookup interface {
	// GetParty resolves a counterparty.
	GetParty(ctx context.Context, id PartyID) (*Party, error)

	// GetItem resolves a catalog item.
	GetItem(ctx context.Context, id ItemID) (*CatalogItem, error)

	// GetDocument resolves a document header (no lines).
	GetDocument(ctx context.Context, id DocumentID) (*Document, error)
}

// =============================================================================
// STORE - Reads and writes available inside an issuance transaction
// =============================================================================

// Store is the surface the Issuer uses inside a transaction.
type Store interface {
	Lookup

	// GetPolicy returns the numbering policy for a module, or (nil, nil)
	// if none is configured.
	GetPolicy(ctx context.Context, module Module) (*numbering.Policy, error)

	// LastCounter returns the last issued counter for (module, bucket),
	// 0 if the bucket is fresh. Inside WithTx this read participates in
	// the transaction's isolation; it is not a plain unlocked read.
	LastCounter(ctx context.Context, module Module, bucket string) (int64, error)

	// InsertDocument persists a document header and all of its lines.
	// Returns ErrDuplicateNumber if a concurrent allocator already
	// claimed the same rendered number.
	InsertDocument(ctx context.Context, doc *Document) error

	// BumpCounter records the newly issued counter for (module, bucket).
	// Must be called in the same transaction as InsertDocument.
	BumpCounter(ctx context.Context, module Module, bucket string, counter int64) error

	// TransitionDocument moves a document to a new status only if its
	// current status is still convertible. Returns
	// ErrParentNotConvertible when the guard fails and
	// ErrDocumentNotFound when the document is missing.
	TransitionDocument(ctx context.Context, id DocumentID, to Status) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back and nothing - header, lines,
	// counters, parent transitions - survives.
	WithTx(ctx context.Context, fn func(Store) error) error
}
