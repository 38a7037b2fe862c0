/*
journal.go - Append-only record of applied events

PURPOSE:
  Defines the interface between the engine's callers and the audit trail.
  Every event that commits gets one journal entry; the entry carries the
  event's identity, the entities it touched, and its boundary flow.

THE JOURNAL IS OUTSIDE THE SUBMIT PATH:
  SubmitEvent performs no I/O. The caller appends to the journal AFTER the
  engine reports success, so a slow or failing journal can never leave the
  ledger half-applied. The tradeoff is accepted: a crash between apply and
  append loses the audit line, not ledger consistency.

APPEND-ONLY CONTRACT:
  - Append(): the ONLY write operation. No Update, no Delete.
  - Idempotency keys reject duplicate submissions from retries.
  - NetExternal() folds the recorded boundary flows for conservation
    reporting.

IMPLEMENTATIONS:
  - engine/journal/memory.go: In-memory for tests and dev
  - store/sqlite: Durable implementation

SEE ALSO:
  - snapshot.go: The Delta an Entry summarizes
  - conservation.go: Consumes NetExternal for the ledger-wide report
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY - One committed event
// =============================================================================

// Entry is the journal's record of an applied event.
type Entry struct {
	EventID    string
	Kind       EventKind
	OccurredAt time.Time
	RecordedAt time.Time

	Resources []ResourceID
	Processes []ProcessID

	External  Cost
	CostMoved Cost

	IdempotencyKey string
	Note           string
}

// NewEntry summarizes a Delta into a journal entry.
func NewEntry(d *Delta, idempotencyKey, note string) Entry {
	return Entry{
		EventID:        d.EventID,
		Kind:           d.Kind,
		OccurredAt:     d.OccurredAt,
		RecordedAt:     d.RecordedAt,
		Resources:      d.TouchedResources(),
		Processes:      d.TouchedProcesses(),
		External:       d.External,
		CostMoved:      d.CostMoved,
		IdempotencyKey: idempotencyKey,
		Note:           note,
	}
}

// =============================================================================
// JOURNAL - Append-only persistence interface
// =============================================================================

// Journal records applied events. Append-only: no Update, no Delete.
type Journal interface {
	// Append persists one entry. Fails with ErrDuplicateIdempotencyKey if
	// the entry's key (when non-empty) was already recorded.
	Append(ctx context.Context, e Entry) error

	// List returns all entries in record order.
	List(ctx context.Context) ([]Entry, error)

	// ListByResource returns entries that touched the given resource,
	// in record order.
	ListByResource(ctx context.Context, id ResourceID) ([]Entry, error)

	// Exists checks whether an idempotency key was already recorded.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// NetExternal sums External across every entry: the right side of the
	// ledger-wide conservation equation.
	NetExternal(ctx context.Context) (Cost, error)
}
