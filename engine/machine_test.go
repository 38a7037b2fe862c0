/*
machine_test.go - Event application behavior, kind by kind

Each test drives one event kind through SubmitEvent and checks the
committed state, the returned Delta, and the failure modes. The
cross-cutting guarantees (conservation, atomicity, concurrency) live
in guarantees_test.go.
*/
package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/meridian/cost-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func produceEvent(id, quantity, costIn string) engine.Event {
	return engine.Event{
		Kind:     engine.EventProduce,
		Resource: engine.ResourceID(id),
		Quantity: qty(quantity, engine.UnitEach),
		CostIn:   cost(costIn),
	}
}

func consumeEvent(id, quantity string) engine.Event {
	return engine.Event{
		Kind:     engine.EventConsume,
		Resource: engine.ResourceID(id),
		Quantity: qty(quantity, engine.UnitEach),
	}
}

func transferEvent(src, dst, quantity string) engine.Event {
	return engine.Event{
		Kind:        engine.EventTransfer,
		Source:      engine.ResourceID(src),
		Destination: engine.ResourceID(dst),
		Quantity:    qty(quantity, engine.UnitEach),
	}
}

func mustSubmit(t *testing.T, e *engine.Engine, ev engine.Event) *engine.Delta {
	t.Helper()
	d, err := e.SubmitEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("submit %s: %v", ev.Kind, err)
	}
	return d
}

func mustGet(t *testing.T, e *engine.Engine, id string) engine.Resource {
	t.Helper()
	r, err := e.GetResource(engine.ResourceID(id))
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return r
}

func assertResource(t *testing.T, e *engine.Engine, id, wantQty, wantCost string) {
	t.Helper()
	r := mustGet(t, e, id)
	if !r.Quantity.Value.Equal(dec(wantQty)) {
		t.Errorf("%s quantity: expected %s, got %v", id, wantQty, r.Quantity.Value)
	}
	if !r.CostBasis.Value.Equal(dec(wantCost)) {
		t.Errorf("%s cost basis: expected %s, got %v", id, wantCost, r.CostBasis.Value)
	}
}

// =============================================================================
// PRODUCE / RAISE / ACCEPT - Value enters the system
// =============================================================================

func TestSubmit_ProduceCreatesResource(t *testing.T) {
	// GIVEN: an empty ledger
	// WHEN: 4 units are produced at a declared cost of 10
	// THEN: the resource exists with that quantity and basis, and the
	//       delta records the creation and the boundary inflow

	e := engine.NewEngine()
	d := mustSubmit(t, e, produceEvent("widget", "4", "10"))

	assertResource(t, e, "widget", "4", "10")

	if len(d.Resources) != 1 {
		t.Fatalf("expected 1 resource change, got %d", len(d.Resources))
	}
	if d.Resources[0].Before != nil {
		t.Error("a created resource has no before-state")
	}
	if !d.External.Value.Equal(dec("10")) {
		t.Errorf("expected external inflow 10, got %v", d.External.Value)
	}
}

func TestSubmit_ProduceAccumulatesWeightedAverage(t *testing.T) {
	// GIVEN: 4 units at cost 10 already on hand
	// WHEN: 2 more are produced at cost 8
	// THEN: quantity 6, basis 18, per-unit cost 3 (the weighted average)

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("widget", "4", "10"))
	mustSubmit(t, e, produceEvent("widget", "2", "8"))

	assertResource(t, e, "widget", "6", "18")

	uc, err := e.PerUnitCost("widget")
	if err != nil {
		t.Fatalf("per-unit cost: %v", err)
	}
	if !uc.Equal(dec("3")) {
		t.Errorf("expected per-unit cost 3, got %v", uc)
	}
}

func TestSubmit_ProduceUnitMismatchOnExisting(t *testing.T) {
	// A resource's unit is fixed at creation. Producing into it with a
	// different unit is rejected and changes nothing.

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("steel", "4", "10"))

	ev := engine.Event{
		Kind:     engine.EventProduce,
		Resource: "steel",
		Quantity: qty("1", engine.UnitKilogram),
		CostIn:   cost("2"),
	}
	_, err := e.SubmitEvent(context.Background(), ev)
	if !errors.Is(err, engine.ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	assertResource(t, e, "steel", "4", "10")
}

func TestSubmit_RaiseAndLowerAdjustInventory(t *testing.T) {
	// Raise and Lower are the inventory-adjustment pair: Raise behaves
	// like Produce, Lower removes quantity with its proportional cost.

	e := engine.NewEngine()
	mustSubmit(t, e, engine.Event{
		Kind:     engine.EventRaise,
		Resource: "stock",
		Quantity: qty("5", engine.UnitEach),
		CostIn:   cost("20"),
	})
	assertResource(t, e, "stock", "5", "20")

	d := mustSubmit(t, e, engine.Event{
		Kind:     engine.EventLower,
		Resource: "stock",
		Quantity: qty("2", engine.UnitEach),
	})
	assertResource(t, e, "stock", "3", "12")
	if !d.External.Value.Equal(dec("-8")) {
		t.Errorf("expected external outflow -8, got %v", d.External.Value)
	}
}

func TestSubmit_AcceptRecordsDeclaredCost(t *testing.T) {
	// Accept is the incoming half of a cross-ledger transfer: quantity
	// arrives with the cost the counterparty declared.

	e := engine.NewEngine()
	mustSubmit(t, e, engine.Event{
		Kind:     engine.EventAccept,
		Resource: "shipment",
		Quantity: qty("3", engine.UnitEach),
		CostIn:   cost("7.5"),
		Provider: "supplier-1",
	})
	assertResource(t, e, "shipment", "3", "7.5")
}

// =============================================================================
// CONSUME - Value leaves, or accrues to a process pool
// =============================================================================

func TestSubmit_ConsumeRemovesProportionalCost(t *testing.T) {
	// GIVEN: 4 units holding 10 of cost
	// WHEN: 1 unit is consumed
	// THEN: 2.5 of cost leaves with it and the per-unit cost is unchanged

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("widget", "4", "10"))

	before, err := e.PerUnitCost("widget")
	if err != nil {
		t.Fatalf("per-unit cost: %v", err)
	}

	d := mustSubmit(t, e, consumeEvent("widget", "1"))

	assertResource(t, e, "widget", "3", "7.5")
	if !d.External.Value.Equal(dec("-2.5")) {
		t.Errorf("expected external outflow -2.5, got %v", d.External.Value)
	}

	after, err := e.PerUnitCost("widget")
	if err != nil {
		t.Fatalf("per-unit cost: %v", err)
	}
	if !after.Equal(before) {
		t.Errorf("per-unit cost must survive proportional consumption: %v != %v", after, before)
	}
}

func TestSubmit_ConsumeOverdrawLeavesStateUntouched(t *testing.T) {
	// GIVEN: 4 units on hand
	// WHEN: 5 are consumed
	// THEN: the event fails and the resource is exactly as before

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("widget", "4", "10"))

	_, err := e.SubmitEvent(context.Background(), consumeEvent("widget", "5"))
	if !errors.Is(err, engine.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}
	assertResource(t, e, "widget", "4", "10")
}

func TestSubmit_ConsumeUnknownResource(t *testing.T) {
	e := engine.NewEngine()

	_, err := e.SubmitEvent(context.Background(), consumeEvent("ghost", "1"))
	if !errors.Is(err, engine.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
	if !engine.IsNotFound(err) {
		t.Error("IsNotFound must recognize the error")
	}
}

func TestSubmit_ConsumeIntoProcessAccruesPool(t *testing.T) {
	// GIVEN: a registered process and 4 units holding 10 of cost
	// WHEN: 1 unit is consumed INTO the process
	// THEN: the 2.5 moves to the process pool; nothing crosses the boundary

	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{ID: "assembly", Name: "Assembly"}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("parts", "4", "10"))

	ev := consumeEvent("parts", "1")
	ev.Process = "assembly"
	d := mustSubmit(t, e, ev)

	assertResource(t, e, "parts", "3", "7.5")

	proc, err := e.GetProcess("assembly")
	if err != nil {
		t.Fatalf("get process: %v", err)
	}
	if !proc.Pool.Value.Equal(dec("2.5")) {
		t.Errorf("expected pool 2.5, got %v", proc.Pool.Value)
	}
	if !d.External.IsZero() {
		t.Errorf("pool accrual is internal; expected external 0, got %v", d.External.Value)
	}
	if len(d.Pools) != 1 {
		t.Errorf("expected 1 pool change, got %d", len(d.Pools))
	}
}

func TestSubmit_ConsumeIntoUnknownProcess(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("parts", "4", "10"))

	ev := consumeEvent("parts", "1")
	ev.Process = "ghost"
	_, err := e.SubmitEvent(context.Background(), ev)
	if !errors.Is(err, engine.ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
	assertResource(t, e, "parts", "4", "10")
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestSubmit_TransferMovesCostWithQuantity(t *testing.T) {
	// GIVEN: 4 units holding 10 of cost at the source
	// WHEN: 1 unit transfers to a new destination
	// THEN: 2.5 of cost moves with it and the total is unchanged

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("warehouse", "4", "10"))

	d := mustSubmit(t, e, transferEvent("warehouse", "storefront", "1"))

	assertResource(t, e, "warehouse", "3", "7.5")
	assertResource(t, e, "storefront", "1", "2.5")

	if !d.External.IsZero() {
		t.Errorf("transfer is internal; expected external 0, got %v", d.External.Value)
	}
	if !d.NetChange().IsZero() {
		t.Errorf("transfer must net to zero, got %v", d.NetChange().Value)
	}
}

func TestSubmit_TransferCreatesDestinationWithSourceUnit(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, engine.Event{
		Kind:     engine.EventProduce,
		Resource: "ore",
		Quantity: qty("10", engine.UnitKilogram),
		CostIn:   cost("100"),
	})

	mustSubmit(t, e, engine.Event{
		Kind:        engine.EventTransfer,
		Source:      "ore",
		Destination: "ore-reserve",
		Quantity:    qty("4", engine.UnitKilogram),
	})

	assertResource(t, e, "ore", "6", "60")
	assertResource(t, e, "ore-reserve", "4", "40")

	r := mustGet(t, e, "ore-reserve")
	if r.Quantity.Unit != engine.UnitKilogram {
		t.Errorf("destination must inherit the source unit, got %s", r.Quantity.Unit)
	}
}

func TestSubmit_TransferUnitMismatchOnExistingDestination(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("widgets", "4", "10"))
	mustSubmit(t, e, engine.Event{
		Kind:     engine.EventProduce,
		Resource: "fuel",
		Quantity: qty("5", engine.UnitLiter),
		CostIn:   cost("5"),
	})

	_, err := e.SubmitEvent(context.Background(), transferEvent("widgets", "fuel", "1"))
	if !errors.Is(err, engine.ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	assertResource(t, e, "widgets", "4", "10")
	assertResource(t, e, "fuel", "5", "5")
}

func TestSubmit_TransferToSelfRejected(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("widget", "4", "10"))

	_, err := e.SubmitEvent(context.Background(), transferEvent("widget", "widget", "1"))
	if !errors.Is(err, engine.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

// =============================================================================
// MODIFY - Cost embodied without quantity change
// =============================================================================

func TestSubmit_ModifyAddsCostKeepsQuantity(t *testing.T) {
	// GIVEN: 2 units holding 4 of cost
	// WHEN: 1 of external cost is embodied (labor, finishing)
	// THEN: quantity is unchanged, basis is 5

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("chair", "2", "4"))

	d := mustSubmit(t, e, engine.Event{
		Kind:     engine.EventModify,
		Resource: "chair",
		CostIn:   cost("1"),
	})

	assertResource(t, e, "chair", "2", "5")
	if !d.External.Value.Equal(dec("1")) {
		t.Errorf("expected external inflow 1, got %v", d.External.Value)
	}
}

func TestSubmit_ModifyFromProcessPool(t *testing.T) {
	// GIVEN: a process pool holding 5 (accrued from consumed inputs)
	// WHEN: the pool cost is embodied into a finished resource
	// THEN: the pool empties into the resource; nothing crosses the boundary

	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{ID: "assembly", Name: "Assembly"}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("parts", "4", "10"))

	consumeIntoPool := consumeEvent("parts", "2")
	consumeIntoPool.Process = "assembly"
	mustSubmit(t, e, consumeIntoPool)

	mustSubmit(t, e, produceEvent("widget", "1", "0"))

	d := mustSubmit(t, e, engine.Event{
		Kind:        engine.EventModify,
		Resource:    "widget",
		FromProcess: "assembly",
		MoveCost:    cost("5"),
	})

	assertResource(t, e, "widget", "1", "5")
	proc, _ := e.GetProcess("assembly")
	if !proc.Pool.IsZero() {
		t.Errorf("expected drained pool, got %v", proc.Pool.Value)
	}
	if !d.External.IsZero() {
		t.Errorf("pool embodiment is internal; expected external 0, got %v", d.External.Value)
	}
}

func TestSubmit_ModifyPoolUnderflowRejected(t *testing.T) {
	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{ID: "assembly", Name: "Assembly"}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("widget", "1", "0"))

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:        engine.EventModify,
		Resource:    "widget",
		FromProcess: "assembly",
		MoveCost:    cost("1"),
	})
	if !errors.Is(err, engine.ErrCostUnderflow) {
		t.Fatalf("expected ErrCostUnderflow, got %v", err)
	}
	assertResource(t, e, "widget", "1", "0")
}

// =============================================================================
// COMBINE
// =============================================================================

func TestSubmit_CombineAddsQuantitiesAndBases(t *testing.T) {
	// GIVEN: two resources, 3@10 and 2@5
	// WHEN: combined into a third
	// THEN: the destination holds 5@15 and the inputs are fully drained

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("batch-a", "3", "10"))
	mustSubmit(t, e, produceEvent("batch-b", "2", "5"))

	d := mustSubmit(t, e, engine.Event{
		Kind:        engine.EventCombine,
		Inputs:      []engine.ResourceID{"batch-a", "batch-b"},
		Destination: "batch-merged",
	})

	assertResource(t, e, "batch-merged", "5", "15")
	assertResource(t, e, "batch-a", "0", "0")
	assertResource(t, e, "batch-b", "0", "0")
	if !d.NetChange().IsZero() {
		t.Errorf("combine must net to zero, got %v", d.NetChange().Value)
	}
}

func TestSubmit_CombineUnitMismatchChangesNothing(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("bolts", "3", "10"))
	mustSubmit(t, e, engine.Event{
		Kind:     engine.EventProduce,
		Resource: "oil",
		Quantity: qty("2", engine.UnitLiter),
		CostIn:   cost("5"),
	})

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:        engine.EventCombine,
		Inputs:      []engine.ResourceID{"bolts", "oil"},
		Destination: "mix",
	})
	if !errors.Is(err, engine.ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}

	assertResource(t, e, "bolts", "3", "10")
	assertResource(t, e, "oil", "2", "5")
	if _, err := e.GetResource("mix"); !engine.IsNotFound(err) {
		t.Error("failed combine must not create the destination")
	}
}

func TestSubmit_CombineDuplicateInputsRejected(t *testing.T) {
	e := engine.NewEngine()

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:        engine.EventCombine,
		Inputs:      []engine.ResourceID{"a", "a"},
		Destination: "b",
	})
	if !errors.Is(err, engine.ErrDuplicateResource) {
		t.Fatalf("expected ErrDuplicateResource, got %v", err)
	}
}

func TestSubmit_CombineUnknownInputChangesNothing(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("batch-a", "3", "10"))

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:        engine.EventCombine,
		Inputs:      []engine.ResourceID{"batch-a", "ghost"},
		Destination: "merged",
	})
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	assertResource(t, e, "batch-a", "3", "10")
	if _, err := e.GetResource("merged"); !engine.IsNotFound(err) {
		t.Error("failed combine must not create the destination")
	}
}

// =============================================================================
// SPLIT
// =============================================================================

func TestSubmit_SplitEqualFullDrain(t *testing.T) {
	// GIVEN: 3 units holding 10 of cost
	// WHEN: split completely into three outputs of 1
	// THEN: the source empties, the shares truncate at scale 12, the first
	//       output absorbs the residual, and the total is exactly 10

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("sheet", "3", "10"))

	d := mustSubmit(t, e, engine.Event{
		Kind:   engine.EventSplit,
		Source: "sheet",
		Outputs: []engine.SplitOutput{
			{Resource: "cut-a", Quantity: qty("1", engine.UnitEach)},
			{Resource: "cut-b", Quantity: qty("1", engine.UnitEach)},
			{Resource: "cut-c", Quantity: qty("1", engine.UnitEach)},
		},
	})

	assertResource(t, e, "sheet", "0", "0")
	assertResource(t, e, "cut-a", "1", "3.333333333334")
	assertResource(t, e, "cut-b", "1", "3.333333333333")
	assertResource(t, e, "cut-c", "1", "3.333333333333")
	if !d.NetChange().IsZero() {
		t.Errorf("split must net to zero, got %v", d.NetChange().Value)
	}
}

func TestSubmit_SplitPartialLeavesRemainderOnSource(t *testing.T) {
	// GIVEN: 10 units holding 7 of cost
	// WHEN: 4 units split off into two outputs of 2
	// THEN: 2.8 of cost leaves the source (1.4 each), 4.2 stays

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("roll", "10", "7"))

	mustSubmit(t, e, engine.Event{
		Kind:   engine.EventSplit,
		Source: "roll",
		Outputs: []engine.SplitOutput{
			{Resource: "piece-a", Quantity: qty("2", engine.UnitEach)},
			{Resource: "piece-b", Quantity: qty("2", engine.UnitEach)},
		},
	})

	assertResource(t, e, "roll", "6", "4.2")
	assertResource(t, e, "piece-a", "2", "1.4")
	assertResource(t, e, "piece-b", "2", "1.4")
}

func TestSubmit_SplitWeightedViaProcessPolicy(t *testing.T) {
	// GIVEN: a process carrying a 1:3 weighted policy
	// WHEN: a split names that process
	// THEN: the cost divides 1:3 regardless of the output quantities

	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{
		ID:     "grading",
		Name:   "Grading",
		Policy: engine.WeightedPolicy(dec("1"), dec("3")),
	}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("roll", "10", "7"))

	mustSubmit(t, e, engine.Event{
		Kind:    engine.EventSplit,
		Source:  "roll",
		Process: "grading",
		Outputs: []engine.SplitOutput{
			{Resource: "grade-b", Quantity: qty("2", engine.UnitEach)},
			{Resource: "grade-a", Quantity: qty("2", engine.UnitEach)},
		},
	})

	assertResource(t, e, "grade-b", "2", "0.7")
	assertResource(t, e, "grade-a", "2", "2.1")
	assertResource(t, e, "roll", "6", "4.2")
}

func TestSubmit_SplitProportionalFullDrain(t *testing.T) {
	// GIVEN: 10 units holding 100 of cost, so 10 per unit
	// WHEN: split into outputs of 3 and 7 under a proportional policy
	// THEN: the cost follows the quantities exactly and the source empties

	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{
		ID:     "portioning",
		Name:   "Portioning",
		Policy: engine.ProportionalPolicy(),
	}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("batch", "10", "100"))

	unit, err := e.PerUnitCost("batch")
	if err != nil {
		t.Fatalf("per-unit cost: %v", err)
	}
	if !unit.Equal(dec("10")) {
		t.Errorf("expected per-unit cost 10, got %v", unit)
	}

	d := mustSubmit(t, e, engine.Event{
		Kind:    engine.EventSplit,
		Source:  "batch",
		Process: "portioning",
		Outputs: []engine.SplitOutput{
			{Resource: "small-lot", Quantity: qty("3", engine.UnitEach)},
			{Resource: "large-lot", Quantity: qty("7", engine.UnitEach)},
		},
	})

	assertResource(t, e, "batch", "0", "0")
	assertResource(t, e, "small-lot", "3", "30")
	assertResource(t, e, "large-lot", "7", "70")
	if !d.NetChange().IsZero() {
		t.Errorf("split must net to zero, got %v", d.NetChange().Value)
	}
}

func TestSubmit_SplitWeightCountMismatchCreatesNothing(t *testing.T) {
	// Allocation is validated before any output exists, so a bad policy
	// leaves the ledger exactly as it was.

	e := engine.NewEngine()
	if err := e.RegisterProcess(engine.Process{
		ID:     "grading",
		Name:   "Grading",
		Policy: engine.WeightedPolicy(dec("1"), dec("3")),
	}); err != nil {
		t.Fatalf("register process: %v", err)
	}
	mustSubmit(t, e, produceEvent("roll", "10", "7"))

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:    engine.EventSplit,
		Source:  "roll",
		Process: "grading",
		Outputs: []engine.SplitOutput{
			{Resource: "x", Quantity: qty("1", engine.UnitEach)},
			{Resource: "y", Quantity: qty("1", engine.UnitEach)},
			{Resource: "z", Quantity: qty("1", engine.UnitEach)},
		},
	})
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Fatalf("expected ErrInvalidWeights, got %v", err)
	}

	assertResource(t, e, "roll", "10", "7")
	for _, id := range []engine.ResourceID{"x", "y", "z"} {
		if _, err := e.GetResource(id); !engine.IsNotFound(err) {
			t.Errorf("failed split must not create %s", id)
		}
	}
}

func TestSubmit_SplitOverdrawRejected(t *testing.T) {
	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("roll", "3", "7"))

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:   engine.EventSplit,
		Source: "roll",
		Outputs: []engine.SplitOutput{
			{Resource: "a2", Quantity: qty("2", engine.UnitEach)},
			{Resource: "b2", Quantity: qty("2", engine.UnitEach)},
		},
	})
	if !errors.Is(err, engine.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}
	assertResource(t, e, "roll", "3", "7")
}

// =============================================================================
// DELIVER
// =============================================================================

func TestSubmit_DeliverResourceModeEjectsCost(t *testing.T) {
	// Resource-mode delivery is the outgoing half of a cross-ledger
	// transfer: quantity and proportional cost leave the system.

	e := engine.NewEngine()
	mustSubmit(t, e, produceEvent("order", "4", "10"))

	d := mustSubmit(t, e, engine.Event{
		Kind:     engine.EventDeliver,
		Resource: "order",
		Quantity: qty("1", engine.UnitEach),
		Receiver: "customer-7",
	})

	assertResource(t, e, "order", "3", "7.5")
	if !d.External.Value.Equal(dec("-2.5")) {
		t.Errorf("expected external outflow -2.5, got %v", d.External.Value)
	}
}

func TestSubmit_DeliverServiceMovesBetweenPools(t *testing.T) {
	// GIVEN: machining holds 5 in its pool
	// WHEN: it delivers 2 of service to finishing
	// THEN: the pools read 3 and 2; nothing crossed the boundary

	e := engine.NewEngine()
	for _, p := range []engine.Process{{ID: "machining", Name: "Machining"}, {ID: "finishing", Name: "Finishing"}} {
		if err := e.RegisterProcess(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}
	mustSubmit(t, e, produceEvent("blanks", "4", "10"))
	seed := consumeEvent("blanks", "2")
	seed.Process = "machining"
	mustSubmit(t, e, seed)

	d := mustSubmit(t, e, engine.Event{
		Kind:        engine.EventDeliver,
		FromProcess: "machining",
		ToProcess:   "finishing",
		MoveCost:    cost("2"),
	})

	from, _ := e.GetProcess("machining")
	to, _ := e.GetProcess("finishing")
	if !from.Pool.Value.Equal(dec("3")) {
		t.Errorf("expected machining pool 3, got %v", from.Pool.Value)
	}
	if !to.Pool.Value.Equal(dec("2")) {
		t.Errorf("expected finishing pool 2, got %v", to.Pool.Value)
	}
	if !d.External.IsZero() {
		t.Errorf("service delivery is internal; expected external 0, got %v", d.External.Value)
	}
}

func TestSubmit_DeliverServicePoolUnderflowRejected(t *testing.T) {
	e := engine.NewEngine()
	for _, p := range []engine.Process{{ID: "machining", Name: "Machining"}, {ID: "finishing", Name: "Finishing"}} {
		if err := e.RegisterProcess(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}

	_, err := e.SubmitEvent(context.Background(), engine.Event{
		Kind:        engine.EventDeliver,
		FromProcess: "machining",
		ToProcess:   "finishing",
		MoveCost:    cost("1"),
	})
	if !errors.Is(err, engine.ErrCostUnderflow) {
		t.Fatalf("expected ErrCostUnderflow, got %v", err)
	}
}

// =============================================================================
// SUBMISSION MECHANICS
// =============================================================================

func TestSubmit_AssignsEventIDWhenEmpty(t *testing.T) {
	e := engine.NewEngine()

	d := mustSubmit(t, e, produceEvent("widget", "1", "1"))
	if d.EventID == "" {
		t.Error("an event without an ID must be assigned one")
	}

	ev := produceEvent("widget", "1", "1")
	ev.ID = "evt-42"
	d = mustSubmit(t, e, ev)
	if d.EventID != "evt-42" {
		t.Errorf("a caller-supplied ID must be kept, got %s", d.EventID)
	}
}

func TestSubmit_InvalidShapeRejectedBeforeStateTouched(t *testing.T) {
	e := engine.NewEngine()

	_, err := e.SubmitEvent(context.Background(), produceEvent("widget", "-1", "10"))
	var iee *engine.InvalidEventError
	if !errors.As(err, &iee) {
		t.Fatalf("expected InvalidEventError, got %v", err)
	}
	if len(e.Resources()) != 0 {
		t.Error("a rejected event must not create anything")
	}
}

func TestSubmit_CancelledContextRejected(t *testing.T) {
	e := engine.NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.SubmitEvent(ctx, produceEvent("widget", "1", "1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubmit_UnknownKindRejected(t *testing.T) {
	e := engine.NewEngine()

	_, err := e.SubmitEvent(context.Background(), engine.Event{Kind: "teleport"})
	if !errors.Is(err, engine.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
