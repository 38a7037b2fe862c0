/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for testing and demos. Each scenario submits real events through
	the same pipeline as the API, so the journal, snapshots, and
	conservation report come out exactly as they would in production use.

AVAILABLE SCENARIOS:

	bakery:    One full production run, raw inputs to delivered loaves
	workshop:  Weighted allocation and service delivery between processes
	trade:     Agreements and commitments between trading partners

HOW SCENARIOS WORK:
 1. Reset state (clear ledger, journal, and order book)
 2. Register processes
 3. Submit events via the standard apply pipeline
 4. Optionally create agreements and fulfill commitments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "bakery"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset all state. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: The apply pipeline scenarios reuse
  - engine/event.go: The event kinds exercised here
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/cost-engine/engine"
	"github.com/meridian/cost-engine/engine/journal"
	"github.com/meridian/cost-engine/orders"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "bakery",
		Name:        "Bakery Production Run",
		Description: "Raw ingredients combined into dough, baked via a process pool, split into retail and wholesale lots, delivered",
	},
	{
		ID:          "workshop",
		Name:        "Furniture Workshop",
		Description: "Weighted cost allocation across outputs plus a service delivery between two processes",
	},
	{
		ID:          "trade",
		Name:        "Harvest Trade",
		Description: "Agreements and commitments between trading partners, one fulfilled and one outstanding",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.resetState(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset state", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "bakery":
		err = h.loadBakeryScenario(ctx)
	case "workshop":
		err = h.loadWorkshopScenario(ctx)
	case "trade":
		err = h.loadTradeScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all state.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetState(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset state", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resetState replaces the engine and order book with empty ones and
// clears persisted rows. With no store wired, the journal is assumed to
// be a memory journal and is replaced too; with a store, the store IS
// the journal and Reset already cleared it.
func (h *Handler) resetState(ctx context.Context) error {
	if h.Store != nil {
		if err := h.Store.Reset(ctx); err != nil {
			return err
		}
	} else {
		h.Journal = journal.NewMemory()
	}

	h.Engine = engine.NewEngine()
	h.Book = orders.NewBook(h.Engine)
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadBakeryScenario walks one production run end to end. Ingredients
// are bought, combined into dough, and fully consumed into the oven's
// cost pool; the pool then flows into the finished loaves, which are
// split proportionally into retail and wholesale lots. Two loaves leave
// the system as a delivery.
func (h *Handler) loadBakeryScenario(ctx context.Context) error {
	err := h.registerProcess(ctx, engine.Process{
		ID:     "oven",
		Name:   "Oven",
		Policy: engine.ProportionalPolicy(),
	})
	if err != nil {
		return err
	}

	script := []engine.Event{
		{
			Kind: engine.EventProduce, Resource: "flour",
			Quantity: scenarioQty("10", engine.UnitKilogram), CostIn: scenarioCost("5"),
			IdempotencyKey: "bakery-01-buy-flour", Note: "Flour delivery from the mill",
		},
		{
			Kind: engine.EventProduce, Resource: "butter",
			Quantity: scenarioQty("2", engine.UnitKilogram), CostIn: scenarioCost("6"),
			IdempotencyKey: "bakery-02-buy-butter", Note: "Butter from the dairy",
		},
		{
			Kind: engine.EventProduce, Resource: "sugar",
			Quantity: scenarioQty("3", engine.UnitKilogram), CostIn: scenarioCost("4.5"),
			IdempotencyKey: "bakery-03-buy-sugar", Note: "Sugar restock",
		},
		{
			Kind: engine.EventCombine, Inputs: []engine.ResourceID{"flour", "butter", "sugar"},
			Destination:    "dough",
			IdempotencyKey: "bakery-04-mix-dough", Note: "Morning batch",
		},
		{
			Kind: engine.EventConsume, Resource: "dough",
			Quantity: scenarioQty("15", engine.UnitKilogram), Process: "oven",
			IdempotencyKey: "bakery-05-bake", Note: "Full batch into the oven",
		},
		{
			Kind: engine.EventProduce, Resource: "loaves",
			Quantity: scenarioQty("20", engine.UnitEach), CostIn: scenarioCost("0"),
			IdempotencyKey: "bakery-06-loaves-out", Note: "Loaves out of the oven, cost still in the pool",
		},
		{
			Kind: engine.EventModify, Resource: "loaves",
			FromProcess: "oven", MoveCost: scenarioCost("15.5"),
			IdempotencyKey: "bakery-07-absorb-pool", Note: "Batch cost absorbed into the loaves",
		},
		{
			Kind: engine.EventModify, Resource: "loaves",
			CostIn:         scenarioCost("2.5"),
			IdempotencyKey: "bakery-08-energy", Note: "Oven energy bill",
		},
		{
			Kind: engine.EventSplit, Source: "loaves", Process: "oven",
			Outputs: []engine.SplitOutput{
				{Resource: "loaves-retail", Quantity: scenarioQty("12", engine.UnitEach)},
				{Resource: "loaves-wholesale", Quantity: scenarioQty("8", engine.UnitEach)},
			},
			IdempotencyKey: "bakery-09-split-lots", Note: "Retail and wholesale lots",
		},
		{
			Kind: engine.EventTransfer, Source: "loaves-retail", Destination: "shopfront",
			Quantity:       scenarioQty("5", engine.UnitEach),
			IdempotencyKey: "bakery-10-stock-shop", Note: "Stocking the shopfront",
		},
		{
			Kind: engine.EventDeliver, Resource: "shopfront",
			Quantity: scenarioQty("2", engine.UnitEach), Receiver: "cafe-corner",
			IdempotencyKey: "bakery-11-deliver", Note: "Standing order for the corner cafe",
		},
	}

	return h.applyScript(ctx, script)
}

// loadWorkshopScenario shows the weighted allocation policy: a split
// under the assembly process divides cost 3:1 between tables and
// stools regardless of their quantities. Finishing charges assembly
// for its work via a service delivery between the two pools.
func (h *Handler) loadWorkshopScenario(ctx context.Context) error {
	err := h.registerProcess(ctx, engine.Process{
		ID:     "assembly",
		Name:   "Assembly",
		Policy: engine.WeightedPolicy(decimal.NewFromInt(3), decimal.NewFromInt(1)),
	})
	if err != nil {
		return err
	}
	err = h.registerProcess(ctx, engine.Process{
		ID:     "finishing",
		Name:   "Finishing",
		Policy: engine.EqualPolicy(),
	})
	if err != nil {
		return err
	}

	script := []engine.Event{
		{
			Kind: engine.EventProduce, Resource: "lumber",
			Quantity: scenarioQty("10", engine.UnitEach), CostIn: scenarioCost("30"),
			IdempotencyKey: "workshop-01-buy-lumber", Note: "Oak boards",
		},
		{
			Kind: engine.EventSplit, Source: "lumber", Process: "assembly",
			Outputs: []engine.SplitOutput{
				{Resource: "tables", Quantity: scenarioQty("2", engine.UnitEach)},
				{Resource: "stools", Quantity: scenarioQty("2", engine.UnitEach)},
			},
			IdempotencyKey: "workshop-02-cut", Note: "Tables carry three times the board cost of stools",
		},
		{
			Kind: engine.EventConsume, Resource: "lumber",
			Quantity: scenarioQty("6", engine.UnitEach), Process: "assembly",
			IdempotencyKey: "workshop-03-frames", Note: "Remaining boards into frame work",
		},
		{
			Kind: engine.EventDeliver, FromProcess: "assembly", ToProcess: "finishing",
			MoveCost:       scenarioCost("4.5"),
			IdempotencyKey: "workshop-04-sanding", Note: "Assembly pays finishing for sanding",
		},
		{
			Kind: engine.EventModify, Resource: "tables",
			FromProcess: "finishing", MoveCost: scenarioCost("4.5"),
			IdempotencyKey: "workshop-05-finish-tables", Note: "Finishing work embodied in the tables",
		},
		{
			Kind: engine.EventModify, Resource: "stools",
			FromProcess: "assembly", MoveCost: scenarioCost("13.5"),
			IdempotencyKey: "workshop-06-finish-stools", Note: "Frame work embodied in the stools",
		},
		{
			Kind: engine.EventRaise, Resource: "offcuts",
			Quantity: scenarioQty("3", engine.UnitEach), CostIn: scenarioCost("1.5"),
			IdempotencyKey: "workshop-07-offcuts", Note: "Usable offcuts found during cleanup",
		},
		{
			Kind: engine.EventLower, Resource: "offcuts",
			Quantity:       scenarioQty("1", engine.UnitEach),
			IdempotencyKey: "workshop-08-warped", Note: "One offcut warped, written off",
		},
	}

	return h.applyScript(ctx, script)
}

// loadTradeScenario sets up two agreements between a farm and a market
// stall: one live with a fulfilled transfer and an outstanding
// delivery, one closed before any commitments were made.
func (h *Handler) loadTradeScenario(ctx context.Context) error {
	script := []engine.Event{
		{
			Kind: engine.EventProduce, Resource: "grain",
			Quantity: scenarioQty("100", engine.UnitKilogram), CostIn: scenarioCost("250"),
			Provider:       "farm-co",
			IdempotencyKey: "trade-01-harvest", Note: "Season harvest booked in",
		},
		{
			Kind: engine.EventAccept, Resource: "crates",
			Quantity: scenarioQty("12", engine.UnitEach), CostIn: scenarioCost("18"),
			Provider: "market-street", Receiver: "farm-co",
			IdempotencyKey: "trade-02-crates", Note: "Returnable crates from the market",
		},
	}
	if err := h.applyScript(ctx, script); err != nil {
		return err
	}

	ag, err := h.Book.CreateAgreement("Harvest Supply", "Weekly grain for the market stall",
		[]engine.AgentID{"farm-co", "market-street"})
	if err != nil {
		return err
	}
	if err := h.persistAgreement(ctx, ag); err != nil {
		return err
	}

	// 40 of the 100 kg at basis 250 moves exactly 100 of cost, so the
	// agreed price matches and fulfillment goes through.
	transfer, err := h.Book.AddCommitment(orders.Commitment{
		AgreementID: ag.ID,
		Action:      orders.ActionTransfer,
		Resource:    "grain",
		Destination: "market-grain",
		Quantity:    scenarioQty("40", engine.UnitKilogram),
		MoveCost:    scenarioCost("100"),
		Provider:    "farm-co",
		Receiver:    "market-street",
		Due:         time.Now().AddDate(0, 0, 3),
		Note:        "First weekly lot",
	})
	if err != nil {
		return err
	}
	if err := h.persistCommitment(ctx, transfer); err != nil {
		return err
	}
	if _, _, err := h.fulfill(ctx, transfer.ID, "trade-03-first-lot"); err != nil {
		return err
	}

	delivery, err := h.Book.AddCommitment(orders.Commitment{
		AgreementID: ag.ID,
		Action:      orders.ActionDeliver,
		Resource:    "market-grain",
		Quantity:    scenarioQty("10", engine.UnitKilogram),
		Provider:    "market-street",
		Receiver:    "city-bistro",
		Due:         time.Now().AddDate(0, 0, 7),
		Note:        "Bistro standing order, not yet delivered",
	})
	if err != nil {
		return err
	}
	if err := h.persistCommitment(ctx, delivery); err != nil {
		return err
	}

	trial, err := h.Book.CreateAgreement("Trial Run", "Abandoned before any commitments",
		[]engine.AgentID{"farm-co", "market-street"})
	if err != nil {
		return err
	}
	if err := h.Book.CloseAgreement(trial.ID); err != nil {
		return err
	}
	closed, err := h.Book.Agreement(trial.ID)
	if err != nil {
		return err
	}
	return h.persistAgreement(ctx, closed)
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func (h *Handler) applyScript(ctx context.Context, script []engine.Event) error {
	for _, ev := range script {
		if _, err := h.apply(ctx, ev); err != nil {
			return fmt.Errorf("%s: %w", ev.IdempotencyKey, err)
		}
	}
	return nil
}

func (h *Handler) registerProcess(ctx context.Context, p engine.Process) error {
	if err := h.Engine.RegisterProcess(p); err != nil {
		return err
	}
	return h.persistProcess(ctx, p.ID)
}

func scenarioQty(s string, unit engine.Unit) engine.Quantity {
	return engine.Quantity{Value: decimal.RequireFromString(s), Unit: unit}
}

func scenarioCost(s string) engine.Cost {
	return engine.Cost{Value: decimal.RequireFromString(s)}
}
