package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/numbering"
	"github.com/warp/document-engine/store/sqlite"
)

// newTestStore opens a store on a per-test database file. A file, not
// :memory:, because the sql pool may hand a second connection a fresh
// empty in-memory database.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStore(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveParty(ctx, document.Party{ID: "party-acme", Name: "Acme", Kind: "customer", Active: true}))
	require.NoError(t, s.SaveItem(ctx, document.CatalogItem{ID: "item-widget", Name: "Widget", StandardPrice: decimal.NewFromInt(100), Active: true}))
	require.NoError(t, s.SavePolicy(ctx, numbering.Policy{
		Module:       string(document.ModuleSalesOrder),
		Prefix:       "SO",
		Separator:    numbering.SeparatorDash,
		BucketFormat: numbering.BucketYYYYMM,
		DigitWidth:   4,
	}))
}

func testIssuer(s *sqlite.Store) *document.Issuer {
	issuer := document.NewIssuer(s, zerolog.Nop())
	issuer.Now = func() time.Time {
		return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	}
	return issuer
}

func widgetRequest() document.IssueRequest {
	return document.IssueRequest{
		Module:  document.ModuleSalesOrder,
		PartyID: "party-acme",
		Lines: []document.RawLine{
			{ItemID: "item-widget", Quantity: decimal.NewFromInt(2), DiscountPct: decimal.NewFromInt(10), TaxPct: decimal.NewFromInt(11)},
		},
	}
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestStore_PartyAndItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	party, err := s.GetParty(ctx, "party-acme")
	require.NoError(t, err)
	require.NotNil(t, party)
	assert.Equal(t, "Acme", party.Name)
	assert.True(t, party.Active)

	missing, err := s.GetParty(ctx, "party-ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	item, err := s.GetItem(ctx, "item-widget")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.True(t, item.StandardPrice.Equal(decimal.NewFromInt(100)))
}

func TestStore_PolicyVersioning(t *testing.T) {
	// GIVEN: A policy and one issued document
	// WHEN: The policy is updated
	// THEN: The version bumps, counters and issued numbers stay put

	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	// Wall-clock issuer: GetPolicy reports the counter for the current
	// bucket, so this test follows real time.
	issuer := document.NewIssuer(s, zerolog.Nop())
	receipt, err := issuer.Issue(ctx, widgetRequest())
	require.NoError(t, err)

	p, err := s.GetPolicy(ctx, document.ModuleSalesOrder)
	require.NoError(t, err)
	require.NotNil(t, p)
	bucket := p.RenderBucket(time.Now().UTC())
	require.Equal(t, p.Format(bucket, 1), receipt.Number)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, int64(1), p.LastIssued)

	p.Prefix = "ORD"
	require.NoError(t, s.SavePolicy(ctx, *p))

	updated, err := s.GetPolicy(ctx, document.ModuleSalesOrder)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "ORD", updated.Prefix)
	assert.Equal(t, int64(1), updated.LastIssued, "policy updates never touch counters")

	issued, err := s.GetDocumentWithLines(ctx, receipt.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Number, issued.Number, "already-issued numbers are immutable")

	// New issuances pick up the new prefix and keep counting.
	next, err := issuer.Issue(ctx, widgetRequest())
	require.NoError(t, err)
	assert.Equal(t, updated.Format(bucket, 2), next.Number)
}

func TestStore_PolicyLastIssuedTracksCurrentBucket(t *testing.T) {
	// GIVEN: Three documents issued into a long-past bucket
	// WHEN: The policy is read now
	// THEN: LastIssued reflects the current bucket, not the old one

	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	past := document.NewIssuer(s, zerolog.Nop())
	past.Now = func() time.Time {
		return time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)
	}
	for n := 1; n <= 3; n++ {
		_, err := past.Issue(ctx, widgetRequest())
		require.NoError(t, err)
	}

	last, err := s.LastCounter(ctx, document.ModuleSalesOrder, "202001")
	require.NoError(t, err)
	require.Equal(t, int64(3), last)

	p, err := s.GetPolicy(ctx, document.ModuleSalesOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.LastIssued, "rolled-over bucket counters must not leak")

	// Issuing in the current bucket brings LastIssued back in step.
	_, err = document.NewIssuer(s, zerolog.Nop()).Issue(ctx, widgetRequest())
	require.NoError(t, err)

	p, err = s.GetPolicy(ctx, document.ModuleSalesOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.LastIssued)
}

func TestStore_SavePolicyRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	err := s.SavePolicy(context.Background(), numbering.Policy{Module: "SalesOrder"})
	assert.ErrorIs(t, err, numbering.ErrInvalidPolicy)
}

func TestStore_GetPolicyMissing(t *testing.T) {
	s := newTestStore(t)
	p, err := s.GetPolicy(context.Background(), document.ModuleInvoice)
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBackEverything(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx document.Store) error {
		doc := &document.Document{
			ID: "doc-1", Module: document.ModuleSalesOrder,
			Number: "SO-202603-0001", Bucket: "202603", Counter: 1,
			Status: document.StatusDraft, PartyID: "party-acme",
			IssuedAt: time.Now(),
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.BumpCounter(ctx, document.ModuleSalesOrder, "202603", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	docs, err := s.ListDocuments(ctx, document.ModuleSalesOrder, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	last, err := s.LastCounter(ctx, document.ModuleSalesOrder, "202603")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestStore_CancelledContextAbortsIssuance(t *testing.T) {
	// GIVEN: A caller whose deadline already expired
	// WHEN: Issue runs with that context
	// THEN: The transaction aborts cleanly and no number was issued

	s := newTestStore(t)
	seedStore(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testIssuer(s).Issue(ctx, widgetRequest())
	require.Error(t, err)

	docs, err := s.ListDocuments(context.Background(), document.ModuleSalesOrder, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	last, err := s.LastCounter(context.Background(), document.ModuleSalesOrder, "202603")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	// A fresh context issues normally afterwards, starting at 1.
	receipt, err := testIssuer(s).Issue(context.Background(), widgetRequest())
	require.NoError(t, err)
	assert.Equal(t, "SO-202603-0001", receipt.Number)
}

func TestStore_DuplicateNumberSurfacesSentinel(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	doc := document.Document{
		ID: "doc-1", Module: document.ModuleSalesOrder,
		Number: "SO-202603-0001", Bucket: "202603", Counter: 1,
		Status: document.StatusDraft, PartyID: "party-acme",
		IssuedAt: time.Now(),
	}
	require.NoError(t, s.InsertDocument(ctx, &doc))

	dup := doc
	dup.ID = "doc-2"
	err := s.InsertDocument(ctx, &dup)
	assert.ErrorIs(t, err, document.ErrDuplicateNumber)
}

func TestStore_TransitionDocumentGuards(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	err := s.TransitionDocument(ctx, "doc-ghost", document.StatusConverted)
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)

	doc := document.Document{
		ID: "doc-1", Module: document.ModuleQuotation,
		Number: "QT-202603-0001", Bucket: "202603", Counter: 1,
		Status: document.StatusDraft, PartyID: "party-acme",
		IssuedAt: time.Now(),
	}
	require.NoError(t, s.InsertDocument(ctx, &doc))

	require.NoError(t, s.TransitionDocument(ctx, "doc-1", document.StatusConverted))

	// The guard fails closed on the second attempt.
	err = s.TransitionDocument(ctx, "doc-1", document.StatusConverted)
	assert.ErrorIs(t, err, document.ErrParentNotConvertible)
}

// =============================================================================
// CONCURRENT ISSUANCE
// =============================================================================

func TestStore_ConcurrentIssuanceYieldsDistinctNumbers(t *testing.T) {
	// GIVEN: 20 goroutines issuing sales orders at once
	// WHEN: All of them complete
	// THEN: Exactly counters 1..20 were handed out, no duplicates, no gaps

	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	const workers = 20
	numbers := make([]string, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			issuer := testIssuer(s)
			issuer.MaxAttempts = workers // enough headroom under full contention
			receipt, err := issuer.Issue(ctx, widgetRequest())
			if err != nil {
				return err
			}
			numbers[w] = receipt.Number
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, workers)
	for _, n := range numbers {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	for c := 1; c <= workers; c++ {
		want := fmt.Sprintf("SO-202603-%04d", c)
		assert.True(t, seen[want], "missing %s", want)
	}

	last, err := s.LastCounter(ctx, document.ModuleSalesOrder, "202603")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), last)
}

// =============================================================================
// COUNTER RESETS
// =============================================================================

func TestStore_ResetCounterRestartsAndAudits(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	issuer := testIssuer(s)
	for n := 1; n <= 3; n++ {
		_, err := issuer.Issue(ctx, widgetRequest())
		require.NoError(t, err)
	}

	err := s.ResetCounter(ctx, document.ModuleSalesOrder, "202603", "", "")
	require.Error(t, err, "actor and reason are mandatory")

	require.NoError(t, s.ResetCounter(ctx, document.ModuleSalesOrder, "202603", "ops@example.com", "migration backfill"))

	last, err := s.LastCounter(ctx, document.ModuleSalesOrder, "202603")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	resets, err := s.ListCounterResets(ctx, document.ModuleSalesOrder)
	require.NoError(t, err)
	require.Len(t, resets, 1)
	assert.Equal(t, int64(3), resets[0].PreviousValue)
	assert.Equal(t, int64(0), resets[0].NewValue)
	assert.Equal(t, "ops@example.com", resets[0].Actor)
	assert.Equal(t, "migration backfill", resets[0].Reason)

	// The documents from before the reset still hold their numbers, so
	// the next issuance collides with SO-202603-0001 on every attempt.
	// The arbiter reports contention rather than ever double-issuing.
	_, err = issuer.Issue(ctx, widgetRequest())
	assert.ErrorIs(t, err, document.ErrAllocationContended)
}

func TestStore_DocumentWithLinesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedStore(t, s)
	ctx := context.Background()

	receipt, err := testIssuer(s).Issue(ctx, widgetRequest())
	require.NoError(t, err)

	doc, err := s.GetDocumentWithLines(ctx, receipt.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, receipt.Number, doc.Number)
	assert.Equal(t, document.StatusDraft, doc.Status)
	require.Len(t, doc.Lines, 1)

	line := doc.Lines[0]
	assert.Equal(t, 0, line.Position)
	assert.True(t, line.Subtotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, line.DiscountAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, line.TaxAmount.Equal(decimal.RequireFromString("19.8")))
	assert.True(t, line.Total.Equal(decimal.RequireFromString("219.8")))
	assert.True(t, doc.Total.Equal(line.Total))
}
