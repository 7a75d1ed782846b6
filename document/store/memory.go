// Package store provides an in-memory TxStore implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/numbering"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements document.TxStore in memory. It emulates the unique
// index on (module, number) so the allocation conflict path behaves the
// same as the SQLite store.
type Memory struct {
	mu        sync.Mutex
	parties   map[document.PartyID]document.Party
	items     map[document.ItemID]document.CatalogItem
	policies  map[document.Module]numbering.Policy
	documents map[document.DocumentID]document.Document
	numbers   map[moduleNumber]document.DocumentID
	counters  map[moduleBucket]int64
}

type moduleNumber struct {
	Module document.Module
	Number string
}

type moduleBucket struct {
	Module document.Module
	Bucket string
}

func NewMemory() *Memory {
	return &Memory{
		parties:   make(map[document.PartyID]document.Party),
		items:     make(map[document.ItemID]document.CatalogItem),
		policies:  make(map[document.Module]numbering.Policy),
		documents: make(map[document.DocumentID]document.Document),
		numbers:   make(map[moduleNumber]document.DocumentID),
		counters:  make(map[moduleBucket]int64),
	}
}

// =============================================================================
// SEED HELPERS - Populate reference data for tests
// =============================================================================

func (m *Memory) SaveParty(p document.Party) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties[p.ID] = p
}

func (m *Memory) SaveItem(it document.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

func (m *Memory) SavePolicy(p numbering.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Version = m.policies[document.Module(p.Module)].Version + 1
	m.policies[document.Module(p.Module)] = p
}

// =============================================================================
// LOOKUP
// =============================================================================

func (m *Memory) GetParty(_ context.Context, id document.PartyID) (*document.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPartyLocked(id)
}

func (m *Memory) getPartyLocked(id document.PartyID) (*document.Party, error) {
	if p, ok := m.parties[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) GetItem(_ context.Context, id document.ItemID) (*document.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getItemLocked(id)
}

func (m *Memory) getItemLocked(id document.ItemID) (*document.CatalogItem, error) {
	if it, ok := m.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (m *Memory) GetDocument(_ context.Context, id document.DocumentID) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getDocumentLocked(id)
}

func (m *Memory) getDocumentLocked(id document.DocumentID) (*document.Document, error) {
	if d, ok := m.documents[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *Memory) GetPolicy(_ context.Context, module document.Module) (*numbering.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPolicyLocked(module)
}

func (m *Memory) getPolicyLocked(module document.Module) (*numbering.Policy, error) {
	if p, ok := m.policies[module]; ok {
		return &p, nil
	}
	return nil, nil
}

// ListDocuments returns documents for a module ordered by (bucket, counter).
func (m *Memory) ListDocuments(_ context.Context, module document.Module) ([]document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []document.Document
	for _, d := range m.documents {
		if module == "" || d.Module == module {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Bucket != docs[j].Bucket {
			return docs[i].Bucket < docs[j].Bucket
		}
		return docs[i].Counter < docs[j].Counter
	})
	return docs, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) LastCounter(_ context.Context, module document.Module, bucket string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCounterLocked(module, bucket)
}

func (m *Memory) lastCounterLocked(module document.Module, bucket string) (int64, error) {
	return m.counters[moduleBucket{Module: module, Bucket: bucket}], nil
}

func (m *Memory) InsertDocument(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertDocumentLocked(doc)
}

func (m *Memory) insertDocumentLocked(doc *document.Document) error {
	key := moduleNumber{Module: doc.Module, Number: doc.Number}
	if _, taken := m.numbers[key]; taken {
		return document.ErrDuplicateNumber
	}
	m.numbers[key] = doc.ID
	m.documents[doc.ID] = *doc
	return nil
}

func (m *Memory) BumpCounter(_ context.Context, module document.Module, bucket string, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bumpCounterLocked(module, bucket, counter)
}

func (m *Memory) bumpCounterLocked(module document.Module, bucket string, counter int64) error {
	m.counters[moduleBucket{Module: module, Bucket: bucket}] = counter
	return nil
}

func (m *Memory) TransitionDocument(_ context.Context, id document.DocumentID, to document.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionDocumentLocked(id, to)
}

func (m *Memory) transitionDocumentLocked(id document.DocumentID, to document.Status) error {
	d, ok := m.documents[id]
	if !ok {
		return document.ErrDocumentNotFound
	}
	if !d.Status.Convertible() {
		return document.ErrParentNotConvertible
	}
	d.Status = to
	m.documents[id] = d
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx emulates a transaction by snapshotting mutable state and
// restoring it when fn fails. The lock is held for the whole call, so
// transactions serialize like SQLite's single writer and a rollback can
// never clobber another transaction's committed writes. fn gets a view
// whose methods skip the lock.
func (m *Memory) WithTx(ctx context.Context, fn func(document.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	documents map[document.DocumentID]document.Document
	numbers   map[moduleNumber]document.DocumentID
	counters  map[moduleBucket]int64
}

func (m *Memory) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		documents: make(map[document.DocumentID]document.Document, len(m.documents)),
		numbers:   make(map[moduleNumber]document.DocumentID, len(m.numbers)),
		counters:  make(map[moduleBucket]int64, len(m.counters)),
	}
	for k, v := range m.documents {
		snap.documents[k] = v
	}
	for k, v := range m.numbers {
		snap.numbers[k] = v
	}
	for k, v := range m.counters {
		snap.counters[k] = v
	}
	return snap
}

func (m *Memory) restoreLocked(snap memorySnapshot) {
	m.documents = snap.documents
	m.numbers = snap.numbers
	m.counters = snap.counters
}

// txMemoryView is the Store handed to a WithTx closure. The parent's
// lock is already held, so every method goes through the lock-free
// helpers.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetParty(_ context.Context, id document.PartyID) (*document.Party, error) {
	return tv.parent.getPartyLocked(id)
}

func (tv *txMemoryView) GetItem(_ context.Context, id document.ItemID) (*document.CatalogItem, error) {
	return tv.parent.getItemLocked(id)
}

func (tv *txMemoryView) GetDocument(_ context.Context, id document.DocumentID) (*document.Document, error) {
	return tv.parent.getDocumentLocked(id)
}

func (tv *txMemoryView) GetPolicy(_ context.Context, module document.Module) (*numbering.Policy, error) {
	return tv.parent.getPolicyLocked(module)
}

func (tv *txMemoryView) LastCounter(_ context.Context, module document.Module, bucket string) (int64, error) {
	return tv.parent.lastCounterLocked(module, bucket)
}

func (tv *txMemoryView) InsertDocument(_ context.Context, doc *document.Document) error {
	return tv.parent.insertDocumentLocked(doc)
}

func (tv *txMemoryView) BumpCounter(_ context.Context, module document.Module, bucket string, counter int64) error {
	return tv.parent.bumpCounterLocked(module, bucket, counter)
}

func (tv *txMemoryView) TransitionDocument(_ context.Context, id document.DocumentID, to document.Status) error {
	return tv.parent.transitionDocumentLocked(id, to)
}
