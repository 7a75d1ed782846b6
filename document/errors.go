/*
errors.go - Centralized error types for the issuance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The api package maps these onto HTTP statuses; the Issuer uses them
  to decide what is retryable.

ERROR CATEGORIES:
  1. Validation errors - terminal, caller-fixable; never retried
  2. Conflict errors   - transient numbering races; retried internally
  3. Infrastructure errors - store failures; surfaced with a retry hint

USAGE:
  if document.IsValidation(err) {
      // 4xx to the caller, do not retry
  }
  if errors.Is(err, document.ErrDuplicateNumber) {
      // lost the allocation race, re-run with a fresh read
  }

SEE ALSO:
  - issuer.go: Retry policy around ErrDuplicateNumber
  - api/handlers.go: HTTP status mapping
*/
package document

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownModule is returned when a request names a document type
	// the engine does not issue.
	ErrUnknownModule = errors.New("unknown document module")

	// ErrPartyNotFound is returned when the counterparty does not exist.
	ErrPartyNotFound = errors.New("party not found")

	// ErrPartyInactive is returned when the counterparty exists but is
	// not eligible (deactivated customer/vendor).
	ErrPartyInactive = errors.New("party is inactive")

	// ErrEmptyDocument is returned when a request has no lines.
	ErrEmptyDocument = errors.New("document has no lines")

	// ErrItemNotFound is returned when a line references a catalog item
	// that does not resolve.
	ErrItemNotFound = errors.New("catalog item not found")

	// ErrParentNotFound is returned when the originating document does
	// not exist.
	ErrParentNotFound = errors.New("parent document not found")

	// ErrParentNotConvertible is returned when the parent exists but is
	// no longer eligible for conversion (already converted, cancelled
	// or completed).
	ErrParentNotConvertible = errors.New("parent document is not convertible")

	// ErrPartyMismatch is returned when the parent document belongs to a
	// different counterparty than the request.
	ErrPartyMismatch = errors.New("parent document belongs to a different party")

	// ErrPolicyNotFound is returned when no numbering policy exists for
	// the requested module.
	ErrPolicyNotFound = errors.New("numbering policy not found")

	// ErrDuplicateNumber is returned when a concurrent allocator already
	// claimed the same (module, bucket, counter). Retryable: re-run the
	// allocation with a fresh read inside a new transaction.
	ErrDuplicateNumber = errors.New("document number already issued")

	// ErrAllocationContended is returned when the bounded number of
	// allocation retries is exhausted.
	ErrAllocationContended = errors.New("number allocation contended: retries exhausted")

	// ErrDocumentNotFound is returned by read paths for unknown IDs.
	ErrDocumentNotFound = errors.New("document not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LineError wraps a pricing failure with the offending line position.
// Assembly is fail-fast: the first bad line aborts the whole document.
type LineError struct {
	Position int
	ItemID   ItemID
	Err      error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (item %s): %v", e.Position, e.ItemID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// InfrastructureError wraps a store-level failure with a retry hint.
// The whole Issue call is safe to retry because nothing partial is
// ever committed.
type InfrastructureError struct {
	Op       string
	CanRetry bool
	Err      error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v (retryable: %t)", e.Op, e.Err, e.CanRetry)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is a terminal, caller-fixable
// validation failure. These are never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownModule) ||
		errors.Is(err, ErrPartyNotFound) ||
		errors.Is(err, ErrPartyInactive) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrParentNotConvertible) ||
		errors.Is(err, ErrPartyMismatch)
}

// IsRetryable reports whether err might succeed on retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrDuplicateNumber) {
		return true
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return infra.CanRetry
	}
	return false
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPartyNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}
