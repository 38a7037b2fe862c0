/*
ledger.go - Guarded resource and process state

PURPOSE:
  The Ledger holds the canonical state: every resource (quantity + cost
  basis) and every process (cost pool). It exposes small guarded primitives
  and performs NO economic validation - it only refuses states that are
  impossible (negative quantity, negative cost without permission).

GUARANTEES:
  1. Atomic per call: each Get/Apply is one critical section
  2. Quantity >= 0 always; violations return ErrQuantityUnderflow
  3. CostBasis >= 0 unless the resource allows negative; ErrCostUnderflow
  4. Entries are never deleted; consumed resources remain at zero

ECONOMIC VALIDATION LIVES ELSEWHERE:
  "Does this consume more than is available?" is the state machine's
  question (machine.go), asked before any delta reaches the ledger. The
  ledger's underflow errors are the last line of defense, not the check.

SEE ALSO:
  - machine.go: The only writer in practice
  - costing.go: Computes the cost deltas applied here
*/
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Canonical state, guarded primitives
// =============================================================================

type Ledger struct {
	mu        sync.RWMutex
	resources map[ResourceID]*Resource
	processes map[ProcessID]*Process
	now       func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		resources: make(map[ResourceID]*Resource),
		processes: make(map[ProcessID]*Process),
		now:       time.Now,
	}
}

// Get returns a copy of the resource, or ErrResourceNotFound.
func (l *Ledger) Get(id ResourceID) (Resource, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("%s: %w", id, ErrResourceNotFound)
	}
	return *r, nil
}

// Exists reports whether a resource entry is present.
func (l *Ledger) Exists(id ResourceID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.resources[id]
	return ok
}

// Ensure creates the resource entry with zero quantity and zero cost if it
// doesn't exist yet, and returns a copy either way. The unit is fixed at
// creation; a later Ensure with a different unit fails with ErrUnitMismatch.
func (l *Ledger) Ensure(id ResourceID, unit Unit) (Resource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.resources[id]; ok {
		if r.Quantity.Unit != unit {
			return Resource{}, fmt.Errorf("resource %s holds %s: %w", id, r.Quantity.Unit, ErrUnitMismatch)
		}
		return *r, nil
	}

	now := l.now()
	r := &Resource{
		ID:        id,
		Quantity:  Quantity{Unit: unit},
		CostBasis: ZeroCost(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.resources[id] = r
	return *r, nil
}

// ApplyDelta adjusts a resource's quantity and cost basis in one atomic
// step. The resource must exist. The resulting state must satisfy the
// ledger invariants or nothing changes.
func (l *Ledger) ApplyDelta(id ResourceID, dq Quantity, dc Cost) (Resource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("%s: %w", id, ErrResourceNotFound)
	}
	if !dq.IsZero() && dq.Unit != r.Quantity.Unit {
		return Resource{}, fmt.Errorf("resource %s holds %s, delta in %s: %w",
			id, r.Quantity.Unit, dq.Unit, ErrUnitMismatch)
	}

	newQty := r.Quantity.Value.Add(dq.Value)
	if newQty.IsNegative() {
		return Resource{}, &QuantityUnderflowError{Resource: id, Current: r.Quantity, Delta: dq}
	}

	newCost := r.CostBasis.Value.Add(dc.Value)
	if newCost.IsNegative() && !r.AllowNegativeCost {
		return Resource{}, &CostUnderflowError{Target: string(id), Current: r.CostBasis, Delta: dc}
	}

	r.Quantity.Value = newQty
	r.CostBasis.Value = newCost
	r.UpdatedAt = l.now()
	return *r, nil
}

// SetAllowNegativeCost flips the negative-basis permission on a resource.
// Used for correction entries.
func (l *Ledger) SetAllowNegativeCost(id ResourceID, allow bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.resources[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrResourceNotFound)
	}
	r.AllowNegativeCost = allow
	r.UpdatedAt = l.now()
	return nil
}

// discard removes a resource entry. Only the rollback path uses this, to
// erase entries that a failed event created; committed entries are never
// deleted.
func (l *Ledger) discard(id ResourceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.resources, id)
}

// Resources returns copies of all entries, sorted by ID.
func (l *Ledger) Resources() []Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Resource, 0, len(l.resources))
	for _, r := range l.resources {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// PROCESS POOLS - Same discipline, cost only
// =============================================================================

// RegisterProcess adds a process. The allocation policy's weight shape is
// validated here; the weight COUNT is checked against outputs at use.
func (l *Ledger) RegisterProcess(p Process) error {
	if err := validatePolicyShape(p.Policy); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processes[p.ID]; ok {
		return fmt.Errorf("process %s already registered: %w", p.ID, ErrInvalidEvent)
	}

	now := l.now()
	cp := p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	l.processes[p.ID] = &cp
	return nil
}

// GetProcess returns a copy of the process, or ErrProcessNotFound.
func (l *Ledger) GetProcess(id ProcessID) (Process, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.processes[id]
	if !ok {
		return Process{}, fmt.Errorf("%s: %w", id, ErrProcessNotFound)
	}
	return *p, nil
}

// ApplyPoolDelta adjusts a process's cost pool. Pools never go negative.
func (l *Ledger) ApplyPoolDelta(id ProcessID, dc Cost) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.processes[id]
	if !ok {
		return Process{}, fmt.Errorf("%s: %w", id, ErrProcessNotFound)
	}

	newPool := p.Pool.Value.Add(dc.Value)
	if newPool.IsNegative() {
		return Process{}, &CostUnderflowError{Target: string(id), Current: p.Pool, Delta: dc}
	}

	p.Pool.Value = newPool
	p.UpdatedAt = l.now()
	return *p, nil
}

// Processes returns copies of all processes, sorted by ID.
func (l *Ledger) Processes() []Process {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Process, 0, len(l.processes))
	for _, p := range l.processes {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TotalCost sums every cost basis and every pool. This is the left side of
// the ledger-wide conservation equation.
func (l *Ledger) TotalCost() Cost {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := ZeroCost()
	for _, r := range l.resources {
		total = total.Add(r.CostBasis)
	}
	for _, p := range l.processes {
		total = total.Add(p.Pool)
	}
	return total
}

// Restore loads previously persisted state wholesale. Used at startup;
// replaces nothing that already exists, so call it on a fresh ledger.
func (l *Ledger) Restore(resources []Resource, processes []Process) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range resources {
		r := resources[i]
		if _, ok := l.resources[r.ID]; ok {
			return fmt.Errorf("restore: duplicate resource %s", r.ID)
		}
		l.resources[r.ID] = &r
	}
	for i := range processes {
		p := processes[i]
		if err := validatePolicyShape(p.Policy); err != nil {
			return fmt.Errorf("restore process %s: %w", p.ID, err)
		}
		if _, ok := l.processes[p.ID]; ok {
			return fmt.Errorf("restore: duplicate process %s", p.ID)
		}
		l.processes[p.ID] = &p
	}
	return nil
}

func validatePolicyShape(policy AllocationPolicy) error {
	switch policy.Kind {
	case AllocEqual, AllocProportional, "":
		if len(policy.Weights) > 0 {
			return &InvalidWeightsError{Reason: "weights apply only to the weighted policy"}
		}
	case AllocWeighted:
		if len(policy.Weights) == 0 {
			return &InvalidWeightsError{Reason: "weighted policy needs weights"}
		}
		sum := decimal.Zero
		for _, w := range policy.Weights {
			if w.IsNegative() {
				return &InvalidWeightsError{Reason: "negative weight"}
			}
			sum = sum.Add(w)
		}
		if !sum.IsPositive() {
			return &InvalidWeightsError{Reason: "weights sum to zero"}
		}
	default:
		return &InvalidWeightsError{Reason: fmt.Sprintf("unknown policy kind %q", policy.Kind)}
	}
	return nil
}
