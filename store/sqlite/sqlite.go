/*
Package sqlite provides the SQLite-backed persistence layer.

PURPOSE:
  Implements the engine.Journal interface plus snapshot save/load for
  ledger state (resources, processes) and the order book (agreements,
  commitments). In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.Journal: Append-only record of applied events

APPEND-ONLY ENFORCEMENT:
  The events table is append-only:
  - No UPDATE statements on events
  - No DELETE statements on events (Reset exists for tests/demo only)
  - Corrections happen as new events, never edits

KEY TABLES:
  events:          Immutable journal of every committed event
  event_resources: Which resources each event touched (for filtering)
  resources:       Current ledger state, upserted after each event
  processes:       Current process state including the cost pool
  agreements:      Order book agreements
  commitments:     Order book commitments

STORAGE FORMAT:
  Decimals are stored as TEXT via decimal.String() so values round-trip
  exactly; no value ever passes through a float column. Timestamps are
  RFC3339Nano TEXT.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/meridian.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng, book, err := store.LoadState(ctx)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/journal.go: The Journal interface and Entry type
  - engine/journal/memory.go: In-memory implementation for testing
  - api/handlers.go: Persists snapshots after each committed event
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/cost-engine/engine"
	"github.com/meridian/cost-engine/orders"
)

// Store implements the journal and snapshot persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
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
	-- Events (append-only journal)
	-- seq carries record order; event IDs are engine-side identities.
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		resources_json TEXT NOT NULL,
		processes_json TEXT NOT NULL,
		external TEXT NOT NULL,
		cost_moved TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_event_id
		ON events(event_id);
	CREATE INDEX IF NOT EXISTS idx_events_idempotency
		ON events(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Which resources each event touched (for per-resource history)
	CREATE TABLE IF NOT EXISTS event_resources (
		event_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		PRIMARY KEY (event_id, resource_id)
	);

	CREATE INDEX IF NOT EXISTS idx_event_resources_resource
		ON event_resources(resource_id);

	-- Resources (current ledger state, one row per entry)
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		cost_basis TEXT NOT NULL,
		allow_negative_cost BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Processes (current state including the accumulated cost pool)
	CREATE TABLE IF NOT EXISTS processes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		policy TEXT NOT NULL,
		weights_json TEXT NOT NULL,
		pool TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Agreements (order book)
	CREATE TABLE IF NOT EXISTS agreements (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		participants_json TEXT NOT NULL,
		closed BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Commitments (order book)
	CREATE TABLE IF NOT EXISTS commitments (
		id TEXT PRIMARY KEY,
		agreement_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		destination_id TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		cost_in TEXT NOT NULL,
		move_cost TEXT NOT NULL,
		provider TEXT NOT NULL,
		receiver TEXT NOT NULL,
		due TEXT,
		note TEXT NOT NULL DEFAULT '',
		finished BOOLEAN DEFAULT FALSE,
		finished_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commitments_agreement
		ON commitments(agreement_id);
	CREATE INDEX IF NOT EXISTS idx_commitments_finished
		ON commitments(finished);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// JOURNAL (engine.Journal interface)
// =============================================================================

// Append persists one journal entry and its touched-resource rows.
func (s *Store) Append(ctx context.Context, e engine.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resourcesJSON, _ := json.Marshal(e.Resources)
	processesJSON, _ := json.Marshal(e.Processes)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO events
		(event_id, kind, occurred_at, recorded_at, resources_json, processes_json,
		 external, cost_moved, idempotency_key, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		e.EventID,
		string(e.Kind),
		e.OccurredAt.Format(time.RFC3339Nano),
		e.RecordedAt.Format(time.RFC3339Nano),
		string(resourcesJSON),
		string(processesJSON),
		e.External.String(),
		e.CostMoved.String(),
		nullString(e.IdempotencyKey),
		e.Note,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append event: %w", err)
	}

	for _, id := range e.Resources {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO event_resources (event_id, resource_id) VALUES (?, ?)",
			e.EventID, string(id),
		)
		if err != nil {
			return fmt.Errorf("failed to record touched resource: %w", err)
		}
	}

	return tx.Commit()
}

// List returns all journal entries in record order.
func (s *Store) List(ctx context.Context) ([]engine.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT event_id, kind, occurred_at, recorded_at, resources_json, processes_json,
		       external, cost_moved, idempotency_key, note
		FROM events
		ORDER BY seq ASC
	`

	return s.queryEntries(ctx, query)
}

// ListByResource returns entries that touched the given resource, in
// record order.
func (s *Store) ListByResource(ctx context.Context, id engine.ResourceID) ([]engine.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT e.event_id, e.kind, e.occurred_at, e.recorded_at, e.resources_json,
		       e.processes_json, e.external, e.cost_moved, e.idempotency_key, e.note
		FROM events e
		JOIN event_resources er ON er.event_id = e.event_id
		WHERE er.resource_id = ?
		ORDER BY e.seq ASC
	`

	return s.queryEntries(ctx, query, string(id))
}

// Exists checks whether an idempotency key was already recorded.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// NetExternal sums the external flow of every journaled event. The sum
// runs through decimal, never SQL numerics, so it stays exact.
func (s *Store) NetExternal(ctx context.Context) (engine.Cost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT external FROM events")
	if err != nil {
		return engine.ZeroCost(), fmt.Errorf("failed to query external flows: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var external string
		if err := rows.Scan(&external); err != nil {
			return engine.ZeroCost(), err
		}
		d, err := parseDecimal("events.external", external)
		if err != nil {
			return engine.ZeroCost(), err
		}
		sum = sum.Add(d)
	}

	return engine.NewCostFromDecimal(sum), rows.Err()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]engine.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []engine.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (engine.Entry, error) {
	var (
		e              engine.Entry
		kind           string
		occurredAt     string
		recordedAt     string
		resourcesJSON  string
		processesJSON  string
		external       string
		costMoved      string
		idempotencyKey sql.NullString
		note           sql.NullString
	)

	err := rows.Scan(
		&e.EventID, &kind, &occurredAt, &recordedAt, &resourcesJSON, &processesJSON,
		&external, &costMoved, &idempotencyKey, &note,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan event: %w", err)
	}

	e.Kind = engine.EventKind(kind)
	e.OccurredAt = parseTime(occurredAt)
	e.RecordedAt = parseTime(recordedAt)
	e.IdempotencyKey = idempotencyKey.String
	e.Note = note.String

	json.Unmarshal([]byte(resourcesJSON), &e.Resources)
	json.Unmarshal([]byte(processesJSON), &e.Processes)

	ext, err := parseDecimal("events.external", external)
	if err != nil {
		return e, err
	}
	moved, err := parseDecimal("events.cost_moved", costMoved)
	if err != nil {
		return e, err
	}
	e.External = engine.NewCostFromDecimal(ext)
	e.CostMoved = engine.NewCostFromDecimal(moved)

	return e, nil
}

// =============================================================================
// LEDGER STATE SNAPSHOTS
// =============================================================================

// SaveResource upserts the current state of one ledger entry.
func (s *Store) SaveResource(ctx context.Context, r engine.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO resources (id, quantity, unit, cost_basis, allow_negative_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			quantity = excluded.quantity,
			unit = excluded.unit,
			cost_basis = excluded.cost_basis,
			allow_negative_cost = excluded.allow_negative_cost,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(r.ID),
		r.Quantity.Value.String(),
		string(r.Quantity.Unit),
		r.CostBasis.String(),
		r.AllowNegativeCost,
		r.CreatedAt.Format(time.RFC3339Nano),
		r.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// LoadResources returns every persisted ledger entry.
func (s *Store) LoadResources(ctx context.Context) ([]engine.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, quantity, unit, cost_basis, allow_negative_cost, created_at, updated_at FROM resources ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []engine.Resource
	for rows.Next() {
		var (
			r         engine.Resource
			id        string
			quantity  string
			unit      string
			costBasis string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&id, &quantity, &unit, &costBasis, &r.AllowNegativeCost, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		qv, err := parseDecimal("resources.quantity", quantity)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", id, err)
		}
		cv, err := parseDecimal("resources.cost_basis", costBasis)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", id, err)
		}

		r.ID = engine.ResourceID(id)
		r.Quantity = engine.NewQuantityFromDecimal(qv, engine.Unit(unit))
		r.CostBasis = engine.NewCostFromDecimal(cv)
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)

		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// SaveProcess upserts the current state of one process, pool included.
func (s *Store) SaveProcess(ctx context.Context, p engine.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	weightsJSON, _ := json.Marshal(p.Policy.Weights)

	query := `
		INSERT INTO processes (id, name, policy, weights_json, pool, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			policy = excluded.policy,
			weights_json = excluded.weights_json,
			pool = excluded.pool,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(p.ID),
		p.Name,
		string(p.Policy.Kind),
		string(weightsJSON),
		p.Pool.String(),
		p.CreatedAt.Format(time.RFC3339Nano),
		p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// LoadProcesses returns every persisted process.
func (s *Store) LoadProcesses(ctx context.Context) ([]engine.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, policy, weights_json, pool, created_at, updated_at FROM processes ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var processes []engine.Process
	for rows.Next() {
		var (
			p           engine.Process
			id          string
			policy      string
			weightsJSON string
			pool        string
			createdAt   string
			updatedAt   string
		)
		if err := rows.Scan(&id, &p.Name, &policy, &weightsJSON, &pool, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		pv, err := parseDecimal("processes.pool", pool)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", id, err)
		}

		var weights []decimal.Decimal
		if err := json.Unmarshal([]byte(weightsJSON), &weights); err != nil {
			return nil, fmt.Errorf("process %s: bad weights: %w", id, err)
		}

		p.ID = engine.ProcessID(id)
		p.Policy = engine.AllocationPolicy{Kind: engine.PolicyKind(policy), Weights: weights}
		p.Pool = engine.NewCostFromDecimal(pv)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)

		processes = append(processes, p)
	}
	return processes, rows.Err()
}

// =============================================================================
// ORDER BOOK SNAPSHOTS
// =============================================================================

// SaveAgreement upserts an agreement.
func (s *Store) SaveAgreement(ctx context.Context, a orders.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participantsJSON, _ := json.Marshal(a.Participants)

	query := `
		INSERT INTO agreements (id, name, note, participants_json, closed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			note = excluded.note,
			closed = excluded.closed,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Note, string(participantsJSON), a.Closed,
		a.CreatedAt.Format(time.RFC3339Nano),
		a.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// LoadAgreements returns every persisted agreement.
func (s *Store) LoadAgreements(ctx context.Context) ([]orders.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, note, participants_json, closed, created_at, updated_at FROM agreements ORDER BY created_at ASC, id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agreements []orders.Agreement
	for rows.Next() {
		var (
			a                orders.Agreement
			participantsJSON string
			createdAt        string
			updatedAt        string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Note, &participantsJSON, &a.Closed, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(participantsJSON), &a.Participants)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)

		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}

// SaveCommitment upserts a commitment. The agreed terms never change
// after creation; only fulfillment state does.
func (s *Store) SaveCommitment(ctx context.Context, c orders.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO commitments (id, agreement_id, action, resource_id, destination_id,
			quantity, unit, cost_in, move_cost, provider, receiver, due, note,
			finished, finished_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished = excluded.finished,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.AgreementID, string(c.Action),
		string(c.Resource), string(c.Destination),
		c.Quantity.Value.String(), string(c.Quantity.Unit),
		c.CostIn.String(), c.MoveCost.String(),
		string(c.Provider), string(c.Receiver),
		nullTime(c.Due), c.Note,
		c.Finished, nullTime(c.FinishedAt),
		c.CreatedAt.Format(time.RFC3339Nano),
		c.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// LoadCommitments returns every persisted commitment.
func (s *Store) LoadCommitments(ctx context.Context) ([]orders.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, agreement_id, action, resource_id, destination_id,
		       quantity, unit, cost_in, move_cost, provider, receiver, due, note,
		       finished, finished_at, created_at, updated_at
		FROM commitments
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commitments []orders.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

func scanCommitment(rows *sql.Rows) (orders.Commitment, error) {
	var (
		c           orders.Commitment
		action      string
		resource    string
		destination string
		quantity    string
		unit        string
		costIn      string
		moveCost    string
		provider    string
		receiver    string
		due         sql.NullString
		finishedAt  sql.NullString
		createdAt   string
		updatedAt   string
	)

	err := rows.Scan(
		&c.ID, &c.AgreementID, &action, &resource, &destination,
		&quantity, &unit, &costIn, &moveCost, &provider, &receiver, &due, &c.Note,
		&c.Finished, &finishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan commitment: %w", err)
	}

	qv, err := parseDecimal("commitments.quantity", quantity)
	if err != nil {
		return c, fmt.Errorf("commitment %s: %w", c.ID, err)
	}
	civ, err := parseDecimal("commitments.cost_in", costIn)
	if err != nil {
		return c, fmt.Errorf("commitment %s: %w", c.ID, err)
	}
	mcv, err := parseDecimal("commitments.move_cost", moveCost)
	if err != nil {
		return c, fmt.Errorf("commitment %s: %w", c.ID, err)
	}

	c.Action = orders.OrderAction(action)
	c.Resource = engine.ResourceID(resource)
	c.Destination = engine.ResourceID(destination)
	c.Quantity = engine.NewQuantityFromDecimal(qv, engine.Unit(unit))
	c.CostIn = engine.NewCostFromDecimal(civ)
	c.MoveCost = engine.NewCostFromDecimal(mcv)
	c.Provider = engine.AgentID(provider)
	c.Receiver = engine.AgentID(receiver)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	if due.Valid {
		c.Due = parseTime(due.String)
	}
	if finishedAt.Valid {
		c.FinishedAt = parseTime(finishedAt.String)
	}

	return c, nil
}

// =============================================================================
// STARTUP
// =============================================================================

// LoadState rebuilds an engine and order book from the persisted
// snapshots. Called once at startup; no event replay happens.
func (s *Store) LoadState(ctx context.Context) (*engine.Engine, *orders.Book, error) {
	resources, err := s.LoadResources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load resources: %w", err)
	}
	processes, err := s.LoadProcesses(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load processes: %w", err)
	}

	eng := engine.NewEngine()
	if err := eng.Restore(resources, processes); err != nil {
		return nil, nil, fmt.Errorf("failed to restore ledger: %w", err)
	}

	agreements, err := s.LoadAgreements(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load agreements: %w", err)
	}
	commitments, err := s.LoadCommitments(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load commitments: %w", err)
	}

	book := orders.NewBook(eng)
	if err := book.Restore(agreements, commitments); err != nil {
		return nil, nil, fmt.Errorf("failed to restore order book: %w", err)
	}

	return eng, book, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"events", "event_resources", "resources", "processes", "commitments", "agreements"}
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

func nullTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// parseDecimal refuses to guess: a ledger value that does not parse is
// corruption, not a zero.
func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad decimal in %s: %q: %w", column, s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
