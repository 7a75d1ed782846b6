/*
issuer.go - Transactional document issuance

PURPOSE:
  The Issuer is the only component allowed to mint document numbers and
  persist document graphs. One Issue call is one unit of work: it opens
  a store transaction, assembles the document, allocates the next number
  for the module's current bucket, writes the header and lines, applies
  the parent side-effect transition, and commits. On any failure the
  whole transaction rolls back.

ALLOCATION UNDER CONCURRENCY:
  Two concurrent Issue calls for the same (module, bucket) may both read
  the same last counter and both try to insert counter+1. The store's
  unique index on the rendered number is the final arbiter: the loser
  gets ErrDuplicateNumber and the Issuer re-runs the whole transaction
  with a fresh read, up to MaxAttempts. This replaces the naive
  read-max-then-increment-without-locking pattern, which double-issues
  numbers under load. Gaps from aborted transactions are acceptable;
  committed numbers per bucket are strictly increasing with no gaps.

RETRY POLICY:
  Only ErrDuplicateNumber is retried. Validation failures surface
  immediately and unmodified. When retries are exhausted the caller
  gets ErrAllocationContended.

SEE ALSO:
  - assemble.go: Validation and pricing (step 2)
  - store.go: The transactional contract (steps 3-6)
  - numbering/policy.go: Bucket rendering and formatting
*/
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds allocation retries per Issue call.
const DefaultMaxAttempts = 3

// Issuer atomically issues numbered documents.
type Issuer struct {
	Store       TxStore
	Now         func() time.Time
	MaxAttempts int
	Log         zerolog.Logger
}

// NewIssuer creates an Issuer with default clock and retry bound.
func NewIssuer(store TxStore, log zerolog.Logger) *Issuer {
	return &Issuer{
		Store:       store,
		Now:         time.Now,
		MaxAttempts: DefaultMaxAttempts,
		Log:         log.With().Str("component", "issuer").Logger(),
	}
}

// Issue validates, prices, numbers and persists a document atomically.
// Returns the caller-facing receipt only after the transaction has
// committed; no number is considered issued before that.
func (i *Issuer) Issue(ctx context.Context, request IssueRequest) (Receipt, error) {
	attempts := i.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}

	var receipt Receipt
	for attempt := 1; attempt <= attempts; attempt++ {
		receipt = Receipt{}
		err := i.Store.WithTx(ctx, func(s Store) error {
			doc, err := Assemble(ctx, s, request)
			if err != nil {
				return err
			}
			if err := i.allocate(ctx, s, doc); err != nil {
				return err
			}
			if err := s.InsertDocument(ctx, doc); err != nil {
				return err
			}
			if err := s.BumpCounter(ctx, doc.Module, doc.Bucket, doc.Counter); err != nil {
				return err
			}
			if doc.ParentID != "" {
				// Same transaction as the insert: the quotation flips to
				// CONVERTED only if this document commits.
				if err := s.TransitionDocument(ctx, doc.ParentID, StatusConverted); err != nil {
					return err
				}
			}
			receipt = Receipt{DocumentID: doc.ID, Number: doc.Number, Total: doc.Total}
			return nil
		})

		if err == nil {
			i.Log.Info().
				Str("module", string(request.Module)).
				Str("number", receipt.Number).
				Int("attempt", attempt).
				Msg("document issued")
			return receipt, nil
		}
		if errors.Is(err, ErrDuplicateNumber) {
			i.Log.Warn().
				Str("module", string(request.Module)).
				Int("attempt", attempt).
				Msg("lost allocation race, retrying")
			continue
		}
		return Receipt{}, err
	}

	return Receipt{}, fmt.Errorf("%w: module %s after %d attempts", ErrAllocationContended, request.Module, attempts)
}

// allocate computes the next number for the document's module and stamps
// the document. Runs inside the issuance transaction so the counter read
// is isolated; the unique number index catches any remaining race.
func (i *Issuer) allocate(ctx context.Context, s Store, doc *Document) error {
	policy, err := s.GetPolicy(ctx, doc.Module)
	if err != nil {
		return &InfrastructureError{Op: "load numbering policy", CanRetry: true, Err: err}
	}
	if policy == nil {
		return fmt.Errorf("%w: %q", ErrPolicyNotFound, doc.Module)
	}

	now := i.Now().UTC()
	bucket := policy.RenderBucket(now)

	last, err := s.LastCounter(ctx, doc.Module, bucket)
	if err != nil {
		return &InfrastructureError{Op: "read sequence counter", CanRetry: true, Err: err}
	}

	doc.ID = DocumentID(uuid.NewString())
	doc.Bucket = bucket
	doc.Counter = last + 1
	doc.Number = policy.Format(bucket, doc.Counter)
	doc.IssuedAt = now
	for li := range doc.Lines {
		doc.Lines[li].ID = uuid.NewString()
	}
	return nil
}
