package document_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/document/store"
)

func seededLookup(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	m.SaveParty(document.Party{ID: "party-acme", Name: "Acme", Kind: "customer", Active: true})
	m.SaveParty(document.Party{ID: "party-dormant", Name: "Dormant Co", Kind: "customer", Active: false})
	m.SaveItem(document.CatalogItem{ID: "item-widget", Name: "Widget", StandardPrice: dec("100"), Active: true})
	m.SaveItem(document.CatalogItem{ID: "item-gizmo", Name: "Gizmo", StandardPrice: dec("40"), Active: true})
	return m
}

func orderRequest(lines ...document.RawLine) document.IssueRequest {
	return document.IssueRequest{
		Module:  document.ModuleSalesOrder,
		PartyID: "party-acme",
		Lines:   lines,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAssemble_UnknownModule(t *testing.T) {
	m := seededLookup(t)
	req := orderRequest(document.RawLine{ItemID: "item-widget", Quantity: dec("1")})
	req.Module = "CreditNote"

	_, err := document.Assemble(context.Background(), m, req)
	assert.ErrorIs(t, err, document.ErrUnknownModule)
}

func TestAssemble_PartyChecks(t *testing.T) {
	m := seededLookup(t)

	missing := orderRequest(document.RawLine{ItemID: "item-widget", Quantity: dec("1")})
	missing.PartyID = "party-ghost"
	_, err := document.Assemble(context.Background(), m, missing)
	assert.ErrorIs(t, err, document.ErrPartyNotFound)

	inactive := orderRequest(document.RawLine{ItemID: "item-widget", Quantity: dec("1")})
	inactive.PartyID = "party-dormant"
	_, err = document.Assemble(context.Background(), m, inactive)
	assert.ErrorIs(t, err, document.ErrPartyInactive)
}

func TestAssemble_EmptyLines(t *testing.T) {
	m := seededLookup(t)

	_, err := document.Assemble(context.Background(), m, orderRequest())
	assert.ErrorIs(t, err, document.ErrEmptyDocument)
}

func TestAssemble_LineFailureIsPositional(t *testing.T) {
	// GIVEN: A three-line request whose middle item does not exist
	// WHEN: The document is assembled
	// THEN: Assembly fails fast with the offending position, no document

	m := seededLookup(t)
	req := orderRequest(
		document.RawLine{ItemID: "item-widget", Quantity: dec("1")},
		document.RawLine{ItemID: "item-vapor", Quantity: dec("1")},
		document.RawLine{ItemID: "item-gizmo", Quantity: dec("1")},
	)

	doc, err := document.Assemble(context.Background(), m, req)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, document.ErrItemNotFound)

	var lineErr *document.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Position)
	assert.Equal(t, document.ItemID("item-vapor"), lineErr.ItemID)
}

// =============================================================================
// PARENT LINKAGE
// =============================================================================

func seedQuotation(m *store.Memory, id document.DocumentID, party document.PartyID, status document.Status) {
	doc := document.Document{
		ID:      id,
		Module:  document.ModuleQuotation,
		Number:  "QT-202608-0001",
		Bucket:  "202608",
		Counter: 1,
		Status:  status,
		PartyID: party,
	}
	// InsertDocument never conflicts here; each test seeds one quotation.
	_ = m.InsertDocument(context.Background(), &doc)
}

func TestAssemble_ParentChecks(t *testing.T) {
	cases := []struct {
		name    string
		seed    func(m *store.Memory)
		wantErr error
	}{
		{
			name:    "missing parent",
			seed:    func(m *store.Memory) {},
			wantErr: document.ErrParentNotFound,
		},
		{
			name: "party mismatch",
			seed: func(m *store.Memory) {
				m.SaveParty(document.Party{ID: "party-other", Name: "Other", Kind: "customer", Active: true})
				seedQuotation(m, "quote-1", "party-other", document.StatusDraft)
			},
			wantErr: document.ErrPartyMismatch,
		},
		{
			name: "already converted",
			seed: func(m *store.Memory) {
				seedQuotation(m, "quote-1", "party-acme", document.StatusConverted)
			},
			wantErr: document.ErrParentNotConvertible,
		},
		{
			name: "cancelled parent",
			seed: func(m *store.Memory) {
				seedQuotation(m, "quote-1", "party-acme", document.StatusCancelled)
			},
			wantErr: document.ErrParentNotConvertible,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := seededLookup(t)
			tc.seed(m)

			req := orderRequest(document.RawLine{ItemID: "item-widget", Quantity: dec("1")})
			req.ParentID = "quote-1"

			_, err := document.Assemble(context.Background(), m, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAssemble_ConfirmedParentIsConvertible(t *testing.T) {
	// Convertibility is "not terminal", not "still draft": a confirmed
	// quotation may legitimately become a sales order.
	m := seededLookup(t)
	seedQuotation(m, "quote-1", "party-acme", document.StatusConfirmed)

	req := orderRequest(document.RawLine{ItemID: "item-widget", Quantity: dec("1")})
	req.ParentID = "quote-1"

	doc, err := document.Assemble(context.Background(), m, req)
	require.NoError(t, err)
	assert.Equal(t, document.DocumentID("quote-1"), doc.ParentID)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAssemble_TotalsAggregateAcrossLines(t *testing.T) {
	m := seededLookup(t)
	req := orderRequest(
		// 2 * 100, 10% discount, 11% tax: subtotal 200, discount 20, tax 19.8
		document.RawLine{ItemID: "item-widget", Quantity: dec("2"), DiscountPct: dec("10"), TaxPct: dec("11")},
		// 5 * 40, no discount, no tax: subtotal 200
		document.RawLine{ItemID: "item-gizmo", Quantity: dec("5")},
	)

	doc, err := document.Assemble(context.Background(), m, req)
	require.NoError(t, err)

	assert.Equal(t, document.StatusDraft, doc.Status)
	assert.Len(t, doc.Lines, 2)
	assert.Equal(t, 0, doc.Lines[0].Position)
	assert.Equal(t, 1, doc.Lines[1].Position)

	assert.True(t, doc.Subtotal.Equal(dec("400")), "subtotal = %s", doc.Subtotal)
	assert.True(t, doc.DiscountAmount.Equal(dec("20")), "discount = %s", doc.DiscountAmount)
	assert.True(t, doc.TaxAmount.Equal(dec("19.8")), "tax = %s", doc.TaxAmount)
	assert.True(t, doc.Total.Equal(dec("399.8")), "total = %s", doc.Total)

	// Assembly prices but never numbers or persists.
	assert.Empty(t, doc.Number)
	assert.Empty(t, doc.ID)
	docs, err := m.ListDocuments(context.Background(), document.ModuleSalesOrder)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
