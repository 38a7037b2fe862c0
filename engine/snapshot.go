/*
snapshot.go - Before/after state delta for an applied event

PURPOSE:
  Every successfully applied event yields a Delta: which entities it
  touched, their state before and after, and the event's boundary flow.
  The Delta is what callers persist, audit, and render; the engine itself
  never re-reads one.

USES:
  - Conservation checking (conservation.go sums the per-entity changes)
  - Journal entries (journal.go records the touched IDs and flows)
  - API responses (clients see exactly what the event did)

SEE ALSO:
  - machine.go: Builds the Delta under the event lock
  - conservation.go: Validates it before the event commits
*/
package engine

import "time"

// =============================================================================
// PER-ENTITY CHANGES
// =============================================================================

// ResourceChange records one resource's state around an event.
// Before is nil when the event created the entry.
type ResourceChange struct {
	ID     ResourceID
	Before *Resource
	After  Resource
}

// CostChange returns the signed cost movement on this resource.
func (rc ResourceChange) CostChange() Cost {
	if rc.Before == nil {
		return rc.After.CostBasis
	}
	return rc.After.CostBasis.Sub(rc.Before.CostBasis)
}

// QuantityChange returns the signed quantity movement on this resource.
func (rc ResourceChange) QuantityChange() Quantity {
	if rc.Before == nil {
		return rc.After.Quantity
	}
	return rc.After.Quantity.Sub(rc.Before.Quantity)
}

// PoolChange records one process pool's state around an event.
type PoolChange struct {
	ID     ProcessID
	Before Cost
	After  Cost
}

func (pc PoolChange) CostChange() Cost {
	return pc.After.Sub(pc.Before)
}

// =============================================================================
// DELTA - The full effect of one event
// =============================================================================

// Delta is the applied event's effect. External is the declared boundary
// flow: positive when value entered the system, negative when it left,
// zero for internal events. CostMoved is the magnitude the event moved,
// for reporting.
type Delta struct {
	EventID    string
	Kind       EventKind
	OccurredAt time.Time
	RecordedAt time.Time

	Resources []ResourceChange
	Pools     []PoolChange

	External  Cost
	CostMoved Cost
}

// NetChange sums the cost movement across every touched entity. For a
// correct event this equals External; conservation.go enforces that.
func (d *Delta) NetChange() Cost {
	net := ZeroCost()
	for _, rc := range d.Resources {
		net = net.Add(rc.CostChange())
	}
	for _, pc := range d.Pools {
		net = net.Add(pc.CostChange())
	}
	return net
}

// TouchedResources lists the resource IDs in the order they were touched.
func (d *Delta) TouchedResources() []ResourceID {
	ids := make([]ResourceID, len(d.Resources))
	for i, rc := range d.Resources {
		ids[i] = rc.ID
	}
	return ids
}

// TouchedProcesses lists the process IDs in the order they were touched.
func (d *Delta) TouchedProcesses() []ProcessID {
	ids := make([]ProcessID, len(d.Pools))
	for i, pc := range d.Pools {
		ids[i] = pc.ID
	}
	return ids
}
