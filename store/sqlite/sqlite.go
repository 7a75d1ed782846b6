/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements document.TxStore plus the administrative surfaces (numbering
  policies, parties, catalog items, document listing) using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  document.Store:   Lookups and writes used inside an issuance
  document.TxStore: WithTx transaction wrapper

UNIQUENESS ARBITER:
  The unique indexes on documents(module, number) and
  documents(module, bucket, counter) are the final authority on number
  allocation. A violating insert surfaces document.ErrDuplicateNumber,
  which the Issuer treats as a retryable conflict. Application code
  never trusts its own counter read alone.

KEY TABLES:
  numbering_policies: Versioned per-module number configuration
  sequence_counters:  Last issued counter per (module, bucket)
  counter_resets:     Audit log of explicit counter resets
  documents:          Document headers with derived totals
  document_lines:     Priced lines, owned by their document
  parties:            Counterparties (customers/vendors)
  catalog_items:      Items with standard prices

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/erp.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  issuer := document.NewIssuer(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - document/store.go: Interface definitions
  - document/issuer.go: The transactional writer
  - document/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/numbering"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same query code
// runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Numbering policies (versioned configuration records)
	CREATE TABLE IF NOT EXISTS numbering_policies (
		module TEXT PRIMARY KEY,
		prefix TEXT NOT NULL,
		separator TEXT NOT NULL,
		bucket_format TEXT NOT NULL,
		digit_width INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Last issued counter per (module, bucket). Read inside the issuance
	-- transaction; the unique document indexes are the final arbiter.
	CREATE TABLE IF NOT EXISTS sequence_counters (
		module TEXT NOT NULL,
		bucket TEXT NOT NULL,
		last_value INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (module, bucket)
	);

	-- Audit log of explicit counter resets. Counters are never reset
	-- implicitly; every row here is an operator action.
	CREATE TABLE IF NOT EXISTS counter_resets (
		id TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		bucket TEXT NOT NULL,
		previous_value INTEGER NOT NULL,
		new_value INTEGER NOT NULL,
		actor TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_counter_resets_module
		ON counter_resets(module);

	-- Counterparties
	CREATE TABLE IF NOT EXISTS parties (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Catalog items
	CREATE TABLE IF NOT EXISTS catalog_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		standard_price TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Document headers. Totals are derived from lines at issue time and
	-- stored denormalized for listing.
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		number TEXT NOT NULL,
		bucket TEXT NOT NULL,
		counter INTEGER NOT NULL,
		status TEXT NOT NULL,
		party_id TEXT NOT NULL,
		parent_id TEXT,
		subtotal TEXT NOT NULL,
		discount_amount TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		total TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the allocation arbiter. Two concurrent issuances for the
	-- same (module, bucket) can both read the same last counter; exactly
	-- one insert survives these indexes.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_module_number
		ON documents(module, number);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_module_bucket_counter
		ON documents(module, bucket, counter);

	CREATE INDEX IF NOT EXISTS idx_documents_party
		ON documents(party_id);
	CREATE INDEX IF NOT EXISTS idx_documents_parent
		ON documents(parent_id) WHERE parent_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_documents_module_issued
		ON documents(module, issued_at DESC);

	-- Document lines (owned by their document, fixed at creation)
	CREATE TABLE IF NOT EXISTS document_lines (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		discount_pct TEXT NOT NULL,
		tax_pct TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		discount_amount TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		total TEXT NOT NULL,
		UNIQUE (document_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_document_lines_document
		ON document_lines(document_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOOKUPS (document.Lookup interface)
// =============================================================================

// GetParty resolves a counterparty. Returns (nil, nil) if missing.
func (s *Store) GetParty(ctx context.Context, id document.PartyID) (*document.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParty(ctx, s.db, id)
}

func getParty(ctx context.Context, db dbtx, id document.PartyID) (*document.Party, error) {
	var (
		p         document.Party
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, kind, active, created_at FROM parties WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Kind, &p.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

// GetItem resolves a catalog item. Returns (nil, nil) if missing.
func (s *Store) GetItem(ctx context.Context, id document.ItemID) (*document.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, db dbtx, id document.ItemID) (*document.CatalogItem, error) {
	var (
		it        document.CatalogItem
		price     string
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, standard_price, active, created_at FROM catalog_items WHERE id = ?", id,
	).Scan(&it.ID, &it.Name, &price, &it.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.StandardPrice = parseDecimal(price)
	it.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &it, nil
}

// GetDocument resolves a document header (no lines). Returns (nil, nil)
// if missing.
func (s *Store) GetDocument(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDocument(ctx, s.db, id)
}

func getDocument(ctx context.Context, db dbtx, id document.DocumentID) (*document.Document, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, module, number, bucket, counter, status, party_id, parent_id,
		       subtotal, discount_amount, tax_amount, total, issued_at, created_at
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		doc                            document.Document
		parentID                       sql.NullString
		subtotal, discount, tax, total string
		issuedAt, createdAt            string
	)
	err := row.Scan(
		&doc.ID, &doc.Module, &doc.Number, &doc.Bucket, &doc.Counter, &doc.Status,
		&doc.PartyID, &parentID, &subtotal, &discount, &tax, &total, &issuedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ParentID = document.DocumentID(parentID.String)
	doc.Subtotal = parseDecimal(subtotal)
	doc.DiscountAmount = parseDecimal(discount)
	doc.TaxAmount = parseDecimal(tax)
	doc.Total = parseDecimal(total)
	doc.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
	doc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &doc, nil
}

// =============================================================================
// NUMBERING POLICIES
// =============================================================================

// GetPolicy returns the numbering policy for a module, (nil, nil) if
// none is configured.
func (s *Store) GetPolicy(ctx context.Context, module document.Module) (*numbering.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, module)
}

func getPolicy(ctx context.Context, db dbtx, module document.Module) (*numbering.Policy, error) {
	var p numbering.Policy
	err := db.QueryRowContext(ctx, `
		SELECT module, prefix, separator, bucket_format, digit_width, version
		FROM numbering_policies WHERE module = ?`, module,
	).Scan(&p.Module, &p.Prefix, &p.Separator, &p.BucketFormat, &p.DigitWidth, &p.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// LastIssued is scoped to the policy's current bucket: after a
	// rollover it reads 0 until the new bucket issues.
	p.LastIssued, err = lastCounter(ctx, db, module, p.RenderBucket(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPolicies returns all numbering policies.
func (s *Store) ListPolicies(ctx context.Context) ([]numbering.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT module, prefix, separator, bucket_format, digit_width, version
		FROM numbering_policies ORDER BY module`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []numbering.Policy
	for rows.Next() {
		var p numbering.Policy
		if err := rows.Scan(&p.Module, &p.Prefix, &p.Separator, &p.BucketFormat, &p.DigitWidth, &p.Version); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range policies {
		policies[i].LastIssued, err = lastCounter(ctx, s.db, document.Module(policies[i].Module), policies[i].RenderBucket(now))
		if err != nil {
			return nil, err
		}
	}
	return policies, nil
}

// SavePolicy inserts or updates a numbering policy. Updates bump the
// version and never touch sequence counters or issued numbers.
func (s *Store) SavePolicy(ctx context.Context, p numbering.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO numbering_policies (module, prefix, separator, bucket_format, digit_width, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(module) DO UPDATE SET
			prefix = excluded.prefix,
			separator = excluded.separator,
			bucket_format = excluded.bucket_format,
			digit_width = excluded.digit_width,
			version = numbering_policies.version + 1,
			updated_at = excluded.updated_at`,
		p.Module, p.Prefix, p.Separator, p.BucketFormat, p.DigitWidth, now, now,
	)
	return err
}

// ResetCounter sets a (module, bucket) counter back to zero and writes
// an audit row. This is the ONLY way a counter moves backwards; actor
// and reason are mandatory.
func (s *Store) ResetCounter(ctx context.Context, module document.Module, bucket, actor, reason string) error {
	if actor == "" || reason == "" {
		return fmt.Errorf("counter reset requires actor and reason")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous int64
	err = tx.QueryRowContext(ctx,
		"SELECT last_value FROM sequence_counters WHERE module = ? AND bucket = ?",
		module, bucket,
	).Scan(&previous)
	if err == sql.ErrNoRows {
		previous = 0
	} else if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_counters (module, bucket, last_value, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(module, bucket) DO UPDATE SET
			last_value = 0,
			updated_at = excluded.updated_at`,
		module, bucket, now,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO counter_resets (id, module, bucket, previous_value, new_value, actor, reason, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		uuid.NewString(), module, bucket, previous, actor, reason, now,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// CounterReset is an audit record of an explicit reset.
type CounterReset struct {
	ID            string
	Module        document.Module
	Bucket        string
	PreviousValue int64
	NewValue      int64
	Actor         string
	Reason        string
	CreatedAt     time.Time
}

// ListCounterResets returns the reset audit trail for a module.
func (s *Store) ListCounterResets(ctx context.Context, module document.Module) ([]CounterReset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module, bucket, previous_value, new_value, actor, reason, created_at
		FROM counter_resets WHERE module = ? ORDER BY created_at DESC`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resets []CounterReset
	for rows.Next() {
		var (
			r         CounterReset
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Module, &r.Bucket, &r.PreviousValue, &r.NewValue, &r.Actor, &r.Reason, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		resets = append(resets, r)
	}
	return resets, rows.Err()
}

// =============================================================================
// SEQUENCE COUNTERS (document.Store interface)
// =============================================================================

// LastCounter returns the last issued counter for (module, bucket).
func (s *Store) LastCounter(ctx context.Context, module document.Module, bucket string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastCounter(ctx, s.db, module, bucket)
}

func lastCounter(ctx context.Context, db dbtx, module document.Module, bucket string) (int64, error) {
	var last int64
	err := db.QueryRowContext(ctx,
		"SELECT last_value FROM sequence_counters WHERE module = ? AND bucket = ?",
		module, bucket,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last, nil
}

// BumpCounter records the newly issued counter for (module, bucket).
func (s *Store) BumpCounter(ctx context.Context, module document.Module, bucket string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bumpCounter(ctx, s.db, module, bucket, counter)
}

func bumpCounter(ctx context.Context, db dbtx, module document.Module, bucket string, counter int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
		INSERT INTO sequence_counters (module, bucket, last_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(module, bucket) DO UPDATE SET
			last_value = excluded.last_value,
			updated_at = excluded.updated_at
		WHERE excluded.last_value > sequence_counters.last_value`,
		module, bucket, counter, now,
	)
	return err
}

// =============================================================================
// DOCUMENT WRITES (document.Store interface)
// =============================================================================

// InsertDocument persists a header and all lines. Returns
// document.ErrDuplicateNumber on a number/counter uniqueness violation.
func (s *Store) InsertDocument(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertDocument(ctx, s.db, doc)
}

func insertDocument(ctx context.Context, db dbtx, doc *document.Document) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(ctx, `
		INSERT INTO documents
		(id, module, number, bucket, counter, status, party_id, parent_id,
		 subtotal, discount_amount, tax_amount, total, issued_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Module, doc.Number, doc.Bucket, doc.Counter, doc.Status,
		doc.PartyID, nullString(string(doc.ParentID)),
		doc.Subtotal.String(), doc.DiscountAmount.String(), doc.TaxAmount.String(), doc.Total.String(),
		doc.IssuedAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return document.ErrDuplicateNumber
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for _, line := range doc.Lines {
		_, err := db.ExecContext(ctx, `
			INSERT INTO document_lines
			(id, document_id, position, item_id, quantity, unit_price, discount_pct, tax_pct,
			 subtotal, discount_amount, tax_amount, total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID, doc.ID, line.Position, line.ItemID,
			line.Quantity.String(), line.UnitPrice.String(), line.DiscountPct.String(), line.TaxPct.String(),
			line.Subtotal.String(), line.DiscountAmount.String(), line.TaxAmount.String(), line.Total.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", line.Position, err)
		}
	}

	return nil
}

// TransitionDocument moves a document to a new status only while its
// current status is still convertible. The conditional UPDATE makes the
// parent-conversion side effect fail closed for already-converted,
// cancelled or completed parents.
func (s *Store) TransitionDocument(ctx context.Context, id document.DocumentID, to document.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transitionDocument(ctx, s.db, id, to)
}

func transitionDocument(ctx context.Context, db dbtx, id document.DocumentID, to document.Status) error {
	res, err := db.ExecContext(ctx, `
		UPDATE documents SET status = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`,
		to, id, document.StatusCompleted, document.StatusCancelled, document.StatusConverted,
	)
	if err != nil {
		return fmt.Errorf("failed to transition document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := getDocument(ctx, db, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return document.ErrDocumentNotFound
		}
		return document.ErrParentNotConvertible
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (document.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(document.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isUniqueConstraintError(err) {
			return document.ErrDuplicateNumber
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the Store view inside an open transaction. All reads and
// writes participate in the transaction's isolation.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetParty(ctx context.Context, id document.PartyID) (*document.Party, error) {
	return getParty(ctx, ts.tx, id)
}

func (ts *txStore) GetItem(ctx context.Context, id document.ItemID) (*document.CatalogItem, error) {
	return getItem(ctx, ts.tx, id)
}

func (ts *txStore) GetDocument(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	return getDocument(ctx, ts.tx, id)
}

func (ts *txStore) GetPolicy(ctx context.Context, module document.Module) (*numbering.Policy, error) {
	return getPolicy(ctx, ts.tx, module)
}

func (ts *txStore) LastCounter(ctx context.Context, module document.Module, bucket string) (int64, error) {
	return lastCounter(ctx, ts.tx, module, bucket)
}

func (ts *txStore) InsertDocument(ctx context.Context, doc *document.Document) error {
	return insertDocument(ctx, ts.tx, doc)
}

func (ts *txStore) BumpCounter(ctx context.Context, module document.Module, bucket string, counter int64) error {
	return bumpCounter(ctx, ts.tx, module, bucket, counter)
}

func (ts *txStore) TransitionDocument(ctx context.Context, id document.DocumentID, to document.Status) error {
	return transitionDocument(ctx, ts.tx, id, to)
}

// =============================================================================
// PARTY STORE
// =============================================================================

// SaveParty inserts or updates a counterparty.
func (s *Store) SaveParty(ctx context.Context, p document.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, kind, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			active = excluded.active`,
		p.ID, p.Name, p.Kind, p.Active, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListParties returns all counterparties.
func (s *Store) ListParties(ctx context.Context) ([]document.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, kind, active, created_at FROM parties ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parties []document.Party
	for rows.Next() {
		var (
			p         document.Party
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Active, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

// =============================================================================
// CATALOG STORE
// =============================================================================

// SaveItem inserts or updates a catalog item.
func (s *Store) SaveItem(ctx context.Context, it document.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, standard_price, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			standard_price = excluded.standard_price,
			active = excluded.active`,
		it.ID, it.Name, it.StandardPrice.String(), it.Active, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListItems returns all catalog items.
func (s *Store) ListItems(ctx context.Context) ([]document.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, standard_price, active, created_at FROM catalog_items ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []document.CatalogItem
	for rows.Next() {
		var (
			it        document.CatalogItem
			price     string
			createdAt string
		)
		if err := rows.Scan(&it.ID, &it.Name, &price, &it.Active, &createdAt); err != nil {
			return nil, err
		}
		it.StandardPrice = parseDecimal(price)
		it.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// DOCUMENT QUERIES (read side for the API)
// =============================================================================

// ListDocuments returns document headers, newest first, optionally
// filtered by module.
func (s *Store) ListDocuments(ctx context.Context, module document.Module, limit int) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, module, number, bucket, counter, status, party_id, parent_id,
		       subtotal, discount_amount, tax_amount, total, issued_at, created_at
		FROM documents`
	args := []any{}
	if module != "" {
		query += " WHERE module = ?"
		args = append(args, module)
	}
	query += " ORDER BY issued_at DESC, counter DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetDocumentWithLines returns a document header and its ordered lines.
func (s *Store) GetDocumentWithLines(ctx context.Context, id document.DocumentID) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := getDocument(ctx, s.db, id)
	if err != nil || doc == nil {
		return doc, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, item_id, quantity, unit_price, discount_pct, tax_pct,
		       subtotal, discount_amount, tax_amount, total
		FROM document_lines WHERE document_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line                                               document.Line
			qty, price, discPct, taxPct, sub, disc, tax, total string
		)
		if err := rows.Scan(&line.ID, &line.Position, &line.ItemID,
			&qty, &price, &discPct, &taxPct, &sub, &disc, &tax, &total); err != nil {
			return nil, err
		}
		line.Quantity = parseDecimal(qty)
		line.UnitPrice = parseDecimal(price)
		line.DiscountPct = parseDecimal(discPct)
		line.TaxPct = parseDecimal(taxPct)
		line.Subtotal = parseDecimal(sub)
		line.DiscountAmount = parseDecimal(disc)
		line.TaxAmount = parseDecimal(tax)
		line.Total = parseDecimal(total)
		doc.Lines = append(doc.Lines, line)
	}
	return doc, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"document_lines", "documents", "sequence_counters", "counter_resets", "parties", "catalog_items", "numbering_policies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
