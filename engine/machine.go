/*
machine.go - Event application with compensating rollback

PURPOSE:
  The Engine is the single entry point for state change. SubmitEvent takes
  one economic event through the full pipeline:

    1. Shape validation (event.go) - no state touched
    2. Lock acquisition - every touched resource and process, in canonical
       sorted order, held until commit or rollback
    3. Planning - stateful validation (existence, units, balances) and
       computation of the exact delta steps, still no mutation
    4. Application - steps applied sequentially; any failure reverses the
       already-applied steps in reverse order
    5. Conservation check - the applied delta must net to its declared
       boundary amount or everything is rolled back

ALL-OR-NOTHING:
  There is no transaction log and no two-phase commit; atomicity comes
  from compensating actions. Every step knows its own inverse, planning
  validates before mutating (so compensation is the safety net, not the
  mechanism), and a failed event leaves state bit-for-bit as it was.

LOCK ORDERING:
  Multi-entity events (transfer, combine, split, service delivery) lock
  all touched keys sorted. Two events contending on overlapping sets
  always take the overlap in the same order, so deadlock is impossible.

NO I/O:
  The engine is synchronous and performs no I/O. Journaling and
  persistence happen in the caller after SubmitEvent returns.

SEE ALSO:
  - event.go: The event kinds and their field matrix
  - conservation.go: The check that gates commit
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	ledger    *Ledger
	locks     *lockManager
	validator ConservationValidator
	now       func() time.Time

	// applyMu lets events on disjoint entities run concurrently while
	// aggregate reads (Resources, TotalCost, conservation reports) exclude
	// every in-flight event. Per-entity reads don't need it: an event
	// touches each entity at most once, so single-entity state is always
	// either pre-event or post-event, never half-applied.
	applyMu sync.RWMutex
}

func NewEngine() *Engine {
	return &Engine{
		ledger: NewLedger(),
		locks:  newLockManager(),
		now:    time.Now,
	}
}

// SetTolerance loosens the conservation check. Only for ledgers restored
// from systems with looser arithmetic; new deployments stay exact.
func (e *Engine) SetTolerance(t decimal.Decimal) {
	e.validator.Tolerance = t
}

// =============================================================================
// READS
// =============================================================================

// GetResource returns the committed state of one resource.
func (e *Engine) GetResource(id ResourceID) (Resource, error) {
	return e.ledger.Get(id)
}

// GetProcess returns the committed state of one process.
func (e *Engine) GetProcess(id ProcessID) (Process, error) {
	return e.ledger.GetProcess(id)
}

// PerUnitCost derives cost basis / quantity for a resource.
// Fails with ErrZeroQuantity on an empty resource.
func (e *Engine) PerUnitCost(id ResourceID) (decimal.Decimal, error) {
	r, err := e.ledger.Get(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return UnitCostOf(r)
}

// Resources returns a consistent snapshot of every ledger entry.
func (e *Engine) Resources() []Resource {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.ledger.Resources()
}

// Processes returns a consistent snapshot of every process.
func (e *Engine) Processes() []Process {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.ledger.Processes()
}

// ConservationReport checks the whole ledger against the accumulated
// boundary flows (the journal's NetExternal).
func (e *Engine) ConservationReport(netExternal Cost) Report {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.validator.CheckLedger(e.ledger, netExternal)
}

// RegisterProcess adds a process with an empty cost pool.
func (e *Engine) RegisterProcess(p Process) error {
	return e.ledger.RegisterProcess(p)
}

// Restore loads persisted state at startup. Call before serving events.
func (e *Engine) Restore(resources []Resource, processes []Process) error {
	return e.ledger.Restore(resources, processes)
}

// =============================================================================
// SUBMIT - The one mutation path
// =============================================================================

// SubmitEvent validates, applies, and conservation-checks one event.
// On success the returned Delta describes exactly what changed. On any
// error the ledger is untouched.
func (e *Engine) SubmitEvent(ctx context.Context, ev Event) (*Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}

	e.applyMu.RLock()
	defer e.applyMu.RUnlock()

	resourceIDs, processIDs := touchedEntities(ev)
	release := e.locks.acquire(lockKeys(resourceIDs, processIDs))
	defer release()

	// Capture pre-state for the delta before anything can change.
	before := e.captureBefore(resourceIDs, processIDs)

	plan, err := e.plan(ev)
	if err != nil {
		if plan != nil {
			e.discardCreated(plan.created)
		}
		return nil, err
	}

	if err := e.applySteps(plan.steps); err != nil {
		e.discardCreated(plan.created)
		return nil, err
	}

	// The check is independent of the plan: net is recomputed from the
	// observed before/after states, the declaration comes from planning.
	delta := e.buildDelta(ev, before, plan)
	if err := e.validator.Check(delta); err != nil {
		e.revertSteps(plan.steps)
		e.discardCreated(plan.created)
		return nil, err
	}

	return delta, nil
}

// =============================================================================
// PLANNING - Validate and compute steps, mutate nothing
// =============================================================================

// step is one guarded mutation that knows its own inverse.
type step struct {
	resource ResourceID // exactly one of resource/process is set
	process  ProcessID
	dq       Quantity
	dc       Cost
}

type eventPlan struct {
	steps    []step
	created  []ResourceID
	external Cost
	moved    Cost
}

func (e *Engine) plan(ev Event) (*eventPlan, error) {
	switch ev.Kind {
	case EventProduce, EventRaise, EventAccept:
		return e.planDeposit(ev)
	case EventConsume, EventLower:
		return e.planWithdraw(ev)
	case EventTransfer:
		return e.planTransfer(ev)
	case EventModify:
		return e.planModify(ev)
	case EventCombine:
		return e.planCombine(ev)
	case EventSplit:
		return e.planSplit(ev)
	case EventDeliver:
		if ev.FromProcess != "" {
			return e.planServiceDelivery(ev)
		}
		return e.planWithdraw(ev)
	}
	return nil, &InvalidEventError{Kind: ev.Kind, Field: "kind", Reason: "unknown event kind"}
}

// planDeposit handles Produce, Raise, and Accept: quantity and declared
// cost enter the system. The resource is created on first use.
func (e *Engine) planDeposit(ev Event) (*eventPlan, error) {
	p := &eventPlan{}
	if !e.ledger.Exists(ev.Resource) {
		p.created = append(p.created, ev.Resource)
	}
	if _, err := e.ledger.Ensure(ev.Resource, ev.Quantity.Unit); err != nil {
		return nil, err
	}

	p.steps = []step{{resource: ev.Resource, dq: ev.Quantity, dc: ev.CostIn}}
	p.external = ev.CostIn
	p.moved = ev.CostIn
	return p, nil
}

// planWithdraw handles Consume, Lower, and resource-mode Deliver: quantity
// leaves with its proportional cost. A Consume naming a process accrues
// the cost to that process's pool instead of ejecting it.
func (e *Engine) planWithdraw(ev Event) (*eventPlan, error) {
	r, err := e.ledger.Get(ev.Resource)
	if err != nil {
		return nil, err
	}
	costOut, err := WithdrawCost(r.CostBasis, r.Quantity, ev.Quantity, r.ID)
	if err != nil {
		return nil, err
	}

	p := &eventPlan{
		steps: []step{{resource: ev.Resource, dq: ev.Quantity.Neg(), dc: costOut.Neg()}},
		moved: costOut,
	}

	if ev.Kind == EventConsume && ev.Process != "" {
		if _, err := e.ledger.GetProcess(ev.Process); err != nil {
			return nil, err
		}
		p.steps = append(p.steps, step{process: ev.Process, dc: costOut})
		// Cost stayed inside the system; nothing crossed the boundary.
		p.external = ZeroCost()
	} else {
		p.external = costOut.Neg()
	}
	return p, nil
}

func (e *Engine) planTransfer(ev Event) (*eventPlan, error) {
	src, err := e.ledger.Get(ev.Source)
	if err != nil {
		return nil, err
	}
	costOut, err := WithdrawCost(src.CostBasis, src.Quantity, ev.Quantity, src.ID)
	if err != nil {
		return nil, err
	}

	p := &eventPlan{moved: costOut}
	if !e.ledger.Exists(ev.Destination) {
		p.created = append(p.created, ev.Destination)
	}
	if _, err := e.ledger.Ensure(ev.Destination, src.Quantity.Unit); err != nil {
		return nil, err
	}

	p.steps = []step{
		{resource: ev.Source, dq: ev.Quantity.Neg(), dc: costOut.Neg()},
		{resource: ev.Destination, dq: ev.Quantity, dc: costOut},
	}
	return p, nil
}

// planModify embodies cost into a resource without changing its quantity.
// From a process pool when FromProcess is set (internal), otherwise from
// outside the system boundary.
func (e *Engine) planModify(ev Event) (*eventPlan, error) {
	if _, err := e.ledger.Get(ev.Resource); err != nil {
		return nil, err
	}

	if ev.FromProcess != "" {
		proc, err := e.ledger.GetProcess(ev.FromProcess)
		if err != nil {
			return nil, err
		}
		if ev.MoveCost.GreaterThan(proc.Pool) {
			return nil, &CostUnderflowError{Target: string(ev.FromProcess), Current: proc.Pool, Delta: ev.MoveCost.Neg()}
		}
		return &eventPlan{
			steps: []step{
				{process: ev.FromProcess, dc: ev.MoveCost.Neg()},
				{resource: ev.Resource, dc: ev.MoveCost},
			},
			moved: ev.MoveCost,
		}, nil
	}

	return &eventPlan{
		steps:    []step{{resource: ev.Resource, dc: ev.CostIn}},
		external: ev.CostIn,
		moved:    ev.CostIn,
	}, nil
}

// planCombine fully drains every input into the destination. Quantities
// add, cost bases add; nothing is divided, so nothing is lost.
func (e *Engine) planCombine(ev Event) (*eventPlan, error) {
	p := &eventPlan{}
	var unit Unit
	totalQty := decimal.Zero
	totalCost := ZeroCost()

	for i, id := range ev.Inputs {
		r, err := e.ledger.Get(id)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			unit = r.Quantity.Unit
		} else if r.Quantity.Unit != unit {
			return nil, fmt.Errorf("combine %s (%s) with %s (%s): %w",
				ev.Inputs[0], unit, id, r.Quantity.Unit, ErrUnitMismatch)
		}
		p.steps = append(p.steps, step{resource: id, dq: r.Quantity.Neg(), dc: r.CostBasis.Neg()})
		totalQty = totalQty.Add(r.Quantity.Value)
		totalCost = totalCost.Add(r.CostBasis)
	}

	if !e.ledger.Exists(ev.Destination) {
		p.created = append(p.created, ev.Destination)
	}
	if _, err := e.ledger.Ensure(ev.Destination, unit); err != nil {
		return nil, err
	}

	p.steps = append(p.steps, step{
		resource: ev.Destination,
		dq:       Quantity{Value: totalQty, Unit: unit},
		dc:       totalCost,
	})
	p.moved = totalCost
	return p, nil
}

// planSplit withdraws the aggregate for all outputs from the source, then
// divides it per the allocation policy. The truncation remainder of the
// withdrawal stays on the source; the allocation itself is exact.
func (e *Engine) planSplit(ev Event) (*eventPlan, error) {
	src, err := e.ledger.Get(ev.Source)
	if err != nil {
		return nil, err
	}

	// Validate every output before creating any of them, so a failure
	// partway through leaves nothing behind.
	totalOut := src.Quantity.Zero()
	for _, out := range ev.Outputs {
		if out.Quantity.Unit != src.Quantity.Unit {
			return nil, fmt.Errorf("split %s (%s) into %s: %w",
				ev.Source, src.Quantity.Unit, out.Quantity.Unit, ErrUnitMismatch)
		}
		if existing, err := e.ledger.Get(out.Resource); err == nil {
			if existing.Quantity.Unit != src.Quantity.Unit {
				return nil, fmt.Errorf("split output %s holds %s: %w",
					out.Resource, existing.Quantity.Unit, ErrUnitMismatch)
			}
		}
		totalOut = totalOut.Add(out.Quantity)
	}

	costOut, err := WithdrawCost(src.CostBasis, src.Quantity, totalOut, src.ID)
	if err != nil {
		return nil, err
	}

	policy := EqualPolicy()
	if ev.Process != "" {
		proc, err := e.ledger.GetProcess(ev.Process)
		if err != nil {
			return nil, err
		}
		policy = proc.Policy
	}

	targets := make([]AllocationTarget, len(ev.Outputs))
	for i, out := range ev.Outputs {
		targets[i] = AllocationTarget{Resource: out.Resource, Quantity: out.Quantity}
	}
	shares, err := Allocate(costOut, policy, targets)
	if err != nil {
		return nil, err
	}

	p := &eventPlan{moved: costOut}
	p.steps = append(p.steps, step{resource: ev.Source, dq: totalOut.Neg(), dc: costOut.Neg()})
	for i, out := range ev.Outputs {
		if !e.ledger.Exists(out.Resource) {
			p.created = append(p.created, out.Resource)
		}
		if _, err := e.ledger.Ensure(out.Resource, src.Quantity.Unit); err != nil {
			return p, err
		}
		p.steps = append(p.steps, step{resource: out.Resource, dq: out.Quantity, dc: shares[i]})
	}
	return p, nil
}

// planServiceDelivery moves cost between two process pools, the engine's
// rendering of one process delivering a service to another.
func (e *Engine) planServiceDelivery(ev Event) (*eventPlan, error) {
	from, err := e.ledger.GetProcess(ev.FromProcess)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.GetProcess(ev.ToProcess); err != nil {
		return nil, err
	}
	if ev.MoveCost.GreaterThan(from.Pool) {
		return nil, &CostUnderflowError{Target: string(ev.FromProcess), Current: from.Pool, Delta: ev.MoveCost.Neg()}
	}

	return &eventPlan{
		steps: []step{
			{process: ev.FromProcess, dc: ev.MoveCost.Neg()},
			{process: ev.ToProcess, dc: ev.MoveCost},
		},
		moved: ev.MoveCost,
	}, nil
}

// =============================================================================
// APPLICATION - Sequential steps, compensating rollback
// =============================================================================

func (e *Engine) applySteps(steps []step) error {
	for i, s := range steps {
		if err := e.applyStep(s); err != nil {
			e.revertSteps(steps[:i])
			return err
		}
	}
	return nil
}

func (e *Engine) applyStep(s step) error {
	if s.resource != "" {
		_, err := e.ledger.ApplyDelta(s.resource, s.dq, s.dc)
		return err
	}
	_, err := e.ledger.ApplyPoolDelta(s.process, s.dc)
	return err
}

// revertSteps undoes applied steps in reverse order. Each inverse restores
// a state that existed moments ago under the same locks, so failure here
// means the ledger itself is corrupt; panicking beats continuing.
func (e *Engine) revertSteps(applied []step) {
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		var err error
		if s.resource != "" {
			_, err = e.ledger.ApplyDelta(s.resource, s.dq.Neg(), s.dc.Neg())
		} else {
			_, err = e.ledger.ApplyPoolDelta(s.process, s.dc.Neg())
		}
		if err != nil {
			panic(fmt.Sprintf("engine: rollback failed, ledger corrupt: %v", err))
		}
	}
}

// discardCreated erases the empty entries a failed event created so that
// failure leaves no trace at all.
func (e *Engine) discardCreated(created []ResourceID) {
	for _, id := range created {
		e.ledger.discard(id)
	}
}

// =============================================================================
// DELTA CONSTRUCTION
// =============================================================================

type beforeState struct {
	resources map[ResourceID]*Resource
	pools     map[ProcessID]Cost
}

func (e *Engine) captureBefore(resourceIDs []ResourceID, processIDs []ProcessID) beforeState {
	b := beforeState{
		resources: make(map[ResourceID]*Resource, len(resourceIDs)),
		pools:     make(map[ProcessID]Cost, len(processIDs)),
	}
	for _, id := range resourceIDs {
		if r, err := e.ledger.Get(id); err == nil {
			cp := r
			b.resources[id] = &cp
		} else {
			b.resources[id] = nil
		}
	}
	for _, id := range processIDs {
		if p, err := e.ledger.GetProcess(id); err == nil {
			b.pools[id] = p.Pool
		}
	}
	return b
}

// buildDelta pairs the captured before-states with fresh after-states.
// External and CostMoved come from the plan, which computed them from
// pre-mutation reads; the conservation check then compares that declared
// amount against what the ledger actually shows.
func (e *Engine) buildDelta(ev Event, before beforeState, plan *eventPlan) *Delta {
	resourceIDs, processIDs := touchedEntities(ev)

	d := &Delta{
		EventID:    ev.ID,
		Kind:       ev.Kind,
		OccurredAt: ev.OccurredAt,
		RecordedAt: e.now(),
		External:   plan.external,
		CostMoved:  plan.moved,
	}
	for _, id := range resourceIDs {
		after, err := e.ledger.Get(id)
		if err != nil {
			continue
		}
		d.Resources = append(d.Resources, ResourceChange{
			ID:     id,
			Before: before.resources[id],
			After:  after,
		})
	}
	for _, id := range processIDs {
		after, err := e.ledger.GetProcess(id)
		if err != nil {
			continue
		}
		d.Pools = append(d.Pools, PoolChange{
			ID:     id,
			Before: before.pools[id],
			After:  after.Pool,
		})
	}
	return d
}

// =============================================================================
// LOCKING
// =============================================================================

// touchedEntities lists every resource and process an event reads or
// writes, in event order.
func touchedEntities(ev Event) ([]ResourceID, []ProcessID) {
	var rs []ResourceID
	var ps []ProcessID

	switch ev.Kind {
	case EventProduce, EventRaise, EventAccept, EventLower:
		rs = []ResourceID{ev.Resource}
	case EventConsume:
		rs = []ResourceID{ev.Resource}
		if ev.Process != "" {
			ps = []ProcessID{ev.Process}
		}
	case EventTransfer:
		rs = []ResourceID{ev.Source, ev.Destination}
	case EventModify:
		rs = []ResourceID{ev.Resource}
		if ev.FromProcess != "" {
			ps = []ProcessID{ev.FromProcess}
		}
	case EventCombine:
		rs = append(rs, ev.Inputs...)
		rs = append(rs, ev.Destination)
	case EventSplit:
		rs = []ResourceID{ev.Source}
		for _, out := range ev.Outputs {
			rs = append(rs, out.Resource)
		}
	case EventDeliver:
		if ev.FromProcess != "" {
			ps = []ProcessID{ev.FromProcess, ev.ToProcess}
		} else {
			rs = []ResourceID{ev.Resource}
		}
	}
	return rs, ps
}

// lockKeys builds the canonical key set. Resources and processes live in
// different namespaces; the prefix keeps their orderings from colliding.
func lockKeys(rs []ResourceID, ps []ProcessID) []string {
	keys := make([]string, 0, len(rs)+len(ps))
	for _, id := range rs {
		keys = append(keys, "r/"+string(id))
	}
	for _, id := range ps {
		keys = append(keys, "p/"+string(id))
	}
	return keys
}

// lockManager hands out one mutex per entity key. Locks are never removed;
// the set of entities is the working set of the ledger and bounded by it.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*sync.Mutex)}
}

// acquire locks every key in sorted order and returns the release.
func (lm *lockManager) acquire(keys []string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	ms := make([]*sync.Mutex, len(uniq))
	for i, k := range uniq {
		lm.mu.Lock()
		m, ok := lm.locks[k]
		if !ok {
			m = &sync.Mutex{}
			lm.locks[k] = m
		}
		lm.mu.Unlock()
		ms[i] = m
	}

	for _, m := range ms {
		m.Lock()
	}
	return func() {
		for i := len(ms) - 1; i >= 0; i-- {
			ms[i].Unlock()
		}
	}
}
