/*
handlers.go - HTTP API handlers for the cost engine

PURPOSE:
  Exposes the event-sourced cost ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Events:
    POST   /api/events                  Submit an event (the sole mutation path)
    GET    /api/events                  Journal listing (?resource= filters)

  Resources:
    GET    /api/resources               List ledger entries
    GET    /api/resources/{id}          Resource state
    GET    /api/resources/{id}/unit-cost Derived per-unit cost
    GET    /api/resources/{id}/events   Journal entries touching the resource

  Processes:
    GET    /api/processes               List processes
    POST   /api/processes               Register a process (factory JSON)
    GET    /api/processes/{id}          Process state including cost pool

  Orders:
    GET    /api/agreements              List agreements
    POST   /api/agreements              Create an agreement
    GET    /api/agreements/{id}         Agreement details
    POST   /api/agreements/{id}/close   Stop new commitments
    GET    /api/agreements/{id}/commitments  List commitments
    POST   /api/agreements/{id}/commitments  Add a commitment
    GET    /api/commitments/{id}        Commitment details
    POST   /api/commitments/{id}/fulfill Fulfill via the engine

  Conservation:
    GET    /api/conservation            Ledger-wide conservation report

REQUEST FLOW (mutations):
  1. Parse HTTP request, decode decimal strings exactly
  2. Reject replayed idempotency keys against the journal
  3. Submit through the engine (atomic, conservation-checked)
  4. Append the journal entry, upsert state snapshots
  5. Serialize the delta

ERROR HANDLING:
  Domain errors map to HTTP status via errorStatus():
  - 400: Invalid shapes, insufficient quantity, bad weights
  - 404: Unknown resource, process, agreement, commitment
  - 409: Replayed idempotency key, already fulfilled, agreed-cost mismatch
  - 500: Conservation violations (engine defect class) and persistence faults

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Provider/receiver fields on events are metadata, not identity.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian/cost-engine/engine"
	"github.com/meridian/cost-engine/factory"
	"github.com/meridian/cost-engine/orders"
	"github.com/meridian/cost-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *engine.Engine
	Book    *orders.Book
	Journal engine.Journal

	// Store persists state snapshots after each event. Nil means
	// journal-only operation (tests, ephemeral dev).
	Store *sqlite.Store

	Factory *factory.ProcessFactory

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around an engine, order book and
// journal. store may be nil.
func NewHandler(eng *engine.Engine, book *orders.Book, journal engine.Journal, store *sqlite.Store) *Handler {
	return &Handler{
		Engine:  eng,
		Book:    book,
		Journal: journal,
		Store:   store,
		Factory: factory.NewProcessFactory(),
	}
}

// apply runs the full mutation pipeline for one event: idempotency
// check, engine submit, journal append, snapshot persist. Scenario
// loaders reuse it so demo data flows through the same path as API
// submissions.
//
// When the returned delta is non-nil alongside an error, the event DID
// commit and only the audit/persistence tail failed.
func (h *Handler) apply(ctx context.Context, ev engine.Event) (*engine.Delta, error) {
	if ev.IdempotencyKey != "" {
		seen, err := h.Journal.Exists(ctx, ev.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if seen {
			return nil, engine.ErrDuplicateIdempotencyKey
		}
	}

	delta, err := h.Engine.SubmitEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	if err := h.Journal.Append(ctx, engine.NewEntry(delta, ev.IdempotencyKey, ev.Note)); err != nil {
		return delta, fmt.Errorf("journal append failed: %w", err)
	}
	if err := h.persistDelta(ctx, delta); err != nil {
		return delta, fmt.Errorf("snapshot persist failed: %w", err)
	}
	return delta, nil
}

// fulfill runs a commitment through the same journal and persistence
// tail as apply. A non-nil delta alongside an error means the
// fulfillment committed but recording it failed.
func (h *Handler) fulfill(ctx context.Context, id, idempotencyKey string) (*engine.Delta, orders.Commitment, error) {
	if idempotencyKey != "" {
		seen, err := h.Journal.Exists(ctx, idempotencyKey)
		if err != nil {
			return nil, orders.Commitment{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if seen {
			return nil, orders.Commitment{}, engine.ErrDuplicateIdempotencyKey
		}
	}

	delta, fulfilled, err := h.Book.Fulfill(ctx, id, idempotencyKey)
	if err != nil {
		return nil, fulfilled, err
	}

	if err := h.Journal.Append(ctx, engine.NewEntry(delta, idempotencyKey, fulfilled.Note)); err != nil {
		return delta, fulfilled, fmt.Errorf("journal append failed: %w", err)
	}
	if err := h.persistDelta(ctx, delta); err != nil {
		return delta, fulfilled, fmt.Errorf("snapshot persist failed: %w", err)
	}
	if err := h.persistCommitment(ctx, fulfilled); err != nil {
		return delta, fulfilled, fmt.Errorf("snapshot persist failed: %w", err)
	}
	return delta, fulfilled, nil
}

// persistDelta upserts the post-event state of everything the delta
// touched.
func (h *Handler) persistDelta(ctx context.Context, d *engine.Delta) error {
	if h.Store == nil {
		return nil
	}
	for _, rc := range d.Resources {
		if err := h.Store.SaveResource(ctx, rc.After); err != nil {
			return err
		}
	}
	for _, pc := range d.Pools {
		if err := h.persistProcess(ctx, pc.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) persistProcess(ctx context.Context, id engine.ProcessID) error {
	if h.Store == nil {
		return nil
	}
	p, err := h.Engine.GetProcess(id)
	if err != nil {
		return err
	}
	return h.Store.SaveProcess(ctx, p)
}

func (h *Handler) persistAgreement(ctx context.Context, a orders.Agreement) error {
	if h.Store == nil {
		return nil
	}
	return h.Store.SaveAgreement(ctx, a)
}

func (h *Handler) persistCommitment(ctx context.Context, c orders.Commitment) error {
	if h.Store == nil {
		return nil
	}
	return h.Store.SaveCommitment(ctx, c)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// SubmitEvent applies one event to the ledger.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ev, err := req.toEvent()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	delta, err := h.apply(r.Context(), ev)
	if err != nil {
		if delta != nil {
			// Committed but not fully recorded; surface loudly.
			writeError(w, http.StatusInternalServerError, "Event applied but persistence failed", err)
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDeltaDTO(delta))
}

// ListEvents returns the journal, optionally filtered by resource.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		entries []engine.Entry
		err     error
	)
	if resource := r.URL.Query().Get("resource"); resource != "" {
		entries, err = h.Journal.ListByResource(ctx, engine.ResourceID(resource))
	} else {
		entries, err = h.Journal.List(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// RESOURCE HANDLERS
// =============================================================================

// ListResources returns every ledger entry.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources := h.Engine.Resources()
	dtos := make([]ResourceDTO, len(resources))
	for i, res := range resources {
		dtos[i] = toResourceDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetResource returns a single ledger entry.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.GetResource(engine.ResourceID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(res))
}

// GetUnitCost returns the derived per-unit cost of a resource. The
// division happens here, on demand; the ledger never stores the result.
func (h *Handler) GetUnitCost(w http.ResponseWriter, r *http.Request) {
	id := engine.ResourceID(chi.URLParam(r, "id"))

	res, err := h.Engine.GetResource(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	perUnit, err := h.Engine.PerUnitCost(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UnitCostDTO{
		ResourceID:     string(id),
		PerUnit:        perUnit.String(),
		PerUnitDisplay: perUnit.StringFixedBank(displayPlaces),
		Unit:           string(res.Quantity.Unit),
	})
}

// GetResourceEvents returns the journal entries that touched a resource.
func (h *Handler) GetResourceEvents(w http.ResponseWriter, r *http.Request) {
	id := engine.ResourceID(chi.URLParam(r, "id"))

	if _, err := h.Engine.GetResource(id); err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.Journal.ListByResource(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// PROCESS HANDLERS
// =============================================================================

// ListProcesses returns every registered process.
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	processes := h.Engine.Processes()
	dtos := make([]ProcessDTO, len(processes))
	for i, p := range processes {
		dtos[i] = toProcessDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProcess registers a process from its JSON definition.
func (h *Handler) CreateProcess(w http.ResponseWriter, r *http.Request) {
	var pj factory.ProcessJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	proc, err := h.Factory.FromJSON(pj)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Engine.RegisterProcess(proc); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.persistProcess(r.Context(), proc.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Process registered but persistence failed", err)
		return
	}

	registered, err := h.Engine.GetProcess(proc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back process", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProcessDTO(registered))
}

// GetProcess returns a process and its cost pool.
func (h *Handler) GetProcess(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.GetProcess(engine.ProcessID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessDTO(p))
}

// =============================================================================
// AGREEMENT HANDLERS
// =============================================================================

// ListAgreements returns every agreement.
func (h *Handler) ListAgreements(w http.ResponseWriter, r *http.Request) {
	agreements := h.Book.Agreements()
	dtos := make([]AgreementDTO, len(agreements))
	for i, a := range agreements {
		dtos[i] = toAgreementDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAgreement opens an agreement between participants.
func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req CreateAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	participants := make([]engine.AgentID, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, engine.AgentID(p))
	}

	ag, err := h.Book.CreateAgreement(req.Name, req.Note, participants)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.persistAgreement(r.Context(), ag); err != nil {
		writeError(w, http.StatusInternalServerError, "Agreement created but persistence failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAgreementDTO(ag))
}

// GetAgreement returns one agreement.
func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	ag, err := h.Book.Agreement(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(ag))
}

// CloseAgreement stops new commitments on an agreement. Outstanding
// commitments remain fulfillable.
func (h *Handler) CloseAgreement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Book.CloseAgreement(id); err != nil {
		writeDomainError(w, err)
		return
	}

	ag, err := h.Book.Agreement(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.persistAgreement(r.Context(), ag); err != nil {
		writeError(w, http.StatusInternalServerError, "Agreement closed but persistence failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toAgreementDTO(ag))
}

// ListCommitments returns the commitments under an agreement.
func (h *Handler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.Book.Agreement(id); err != nil {
		writeDomainError(w, err)
		return
	}

	commitments := h.Book.Commitments(id)
	dtos := make([]CommitmentDTO, len(commitments))
	for i, c := range commitments {
		dtos[i] = toCommitmentDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddCommitment adds a commitment to an agreement.
func (h *Handler) AddCommitment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := commitmentFromRequest(chi.URLParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	added, err := h.Book.AddCommitment(c)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.persistCommitment(r.Context(), added); err != nil {
		writeError(w, http.StatusInternalServerError, "Commitment added but persistence failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommitmentDTO(added))
}

func commitmentFromRequest(agreementID string, req CreateCommitmentRequest) (orders.Commitment, error) {
	c := orders.Commitment{
		AgreementID: agreementID,
		Action:      orders.OrderAction(req.Action),
		Resource:    engine.ResourceID(req.Resource),
		Destination: engine.ResourceID(req.Destination),
		Provider:    engine.AgentID(req.Provider),
		Receiver:    engine.AgentID(req.Receiver),
		Note:        req.Note,
	}

	if req.Quantity != "" {
		v, err := parseWireDecimal("quantity", req.Quantity)
		if err != nil {
			return orders.Commitment{}, err
		}
		c.Quantity = engine.NewQuantityFromDecimal(v, engine.Unit(req.Unit))
	}
	if req.CostIn != "" {
		v, err := parseWireDecimal("cost_in", req.CostIn)
		if err != nil {
			return orders.Commitment{}, err
		}
		c.CostIn = engine.NewCostFromDecimal(v)
	}
	if req.MoveCost != "" {
		v, err := parseWireDecimal("move_cost", req.MoveCost)
		if err != nil {
			return orders.Commitment{}, err
		}
		c.MoveCost = engine.NewCostFromDecimal(v)
	}
	if req.Due != "" {
		due, err := parseWireTime("due", req.Due)
		if err != nil {
			return orders.Commitment{}, err
		}
		c.Due = due
	}

	return c, nil
}

// =============================================================================
// COMMITMENT HANDLERS
// =============================================================================

// GetCommitment returns one commitment.
func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := h.Book.Commitment(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(c))
}

// FulfillCommitment fulfills a commitment through the engine. The body
// is optional; an empty one fulfills without an idempotency key.
func (h *Handler) FulfillCommitment(w http.ResponseWriter, r *http.Request) {
	var req FulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	delta, fulfilled, err := h.fulfill(r.Context(), chi.URLParam(r, "id"), req.IdempotencyKey)
	if err != nil {
		if delta != nil {
			writeError(w, http.StatusInternalServerError, "Fulfilled but persistence failed", err)
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FulfillResponseDTO{
		Delta:      toDeltaDTO(delta),
		Commitment: toCommitmentDTO(fulfilled),
	})
}

// =============================================================================
// CONSERVATION HANDLER
// =============================================================================

// Conservation reports whether everything on the ledger is accounted
// for by the journaled boundary flows. An unbalanced report with a 200
// status is deliberate: the report is data, the violation already paged
// via the failing event.
func (h *Handler) Conservation(w http.ResponseWriter, r *http.Request) {
	net, err := h.Journal.NetExternal(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sum journal flows", err)
		return
	}

	report := h.Engine.ConservationReport(net)
	writeJSON(w, http.StatusOK, ConservationDTO{
		TotalOnLedger: report.TotalOnLedger.String(),
		NetExternal:   report.NetExternal.String(),
		Drift:         report.Drift.String(),
		Balanced:      report.Balanced,
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// errorStatus maps a domain error to an HTTP status and a stable
// machine-readable code.
func errorStatus(err error) (int, string) {
	var mismatch *orders.CommitmentMismatchError

	switch {
	case engine.IsNotFound(err),
		errors.Is(err, orders.ErrAgreementNotFound),
		errors.Is(err, orders.ErrCommitmentNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, engine.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate_submission"

	case errors.Is(err, orders.ErrAlreadyFulfilled):
		return http.StatusConflict, "already_fulfilled"

	case errors.Is(err, orders.ErrAgreementClosed):
		return http.StatusConflict, "agreement_closed"

	case errors.As(err, &mismatch):
		return http.StatusConflict, "agreed_cost_mismatch"

	case engine.IsClientError(err),
		errors.Is(err, orders.ErrNotParty),
		errors.Is(err, orders.ErrUnknownAction),
		errors.Is(err, orders.ErrNoParticipants),
		errors.Is(err, orders.ErrCommitmentMismatch):
		return http.StatusBadRequest, "invalid_request"

	case engine.IsFatal(err):
		return http.StatusInternalServerError, "conservation_violation"
	}

	return http.StatusInternalServerError, "internal"
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
