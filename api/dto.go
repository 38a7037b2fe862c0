/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMAL FIELDS:
  Every quantity and cost crosses the wire as an exact decimal string
  ("6.666666666667"), never a float. Responses additionally carry a
  *_display sibling rounded half-even to two places - presentation only,
  never feed it back in.

TYPES:
  Events:
    EventRequest, SplitOutputRequest, DeltaDTO, EntryDTO

  Ledger:
    ResourceDTO, UnitCostDTO, ProcessDTO, ConservationDTO

  Orders:
    AgreementDTO, CommitmentDTO, CreateAgreementRequest,
    CreateCommitmentRequest, FulfillRequest

VALIDATION:
  Shape validation is done in handlers and the engine, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/process.go: ProcessJSON for process creation
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/cost-engine/engine"
	"github.com/meridian/cost-engine/orders"
)

// displayPlaces is the scale for the *_display fields. Rounding is
// half-even and happens only here, at the boundary.
const displayPlaces = 2

// =============================================================================
// EVENT REQUEST
// =============================================================================

// EventRequest is the request to submit an event. Which fields apply
// depends on kind; the engine validates the shape.
type EventRequest struct {
	Kind        string               `json:"kind"`
	Resource    string               `json:"resource,omitempty"`
	Source      string               `json:"source,omitempty"`
	Destination string               `json:"destination,omitempty"`
	Inputs      []string             `json:"inputs,omitempty"`
	Outputs     []SplitOutputRequest `json:"outputs,omitempty"`

	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	CostIn   string `json:"cost_in,omitempty"`
	MoveCost string `json:"move_cost,omitempty"`

	Process     string `json:"process,omitempty"`
	FromProcess string `json:"from_process,omitempty"`
	ToProcess   string `json:"to_process,omitempty"`

	Provider string `json:"provider,omitempty"`
	Receiver string `json:"receiver,omitempty"`

	OccurredAt     string `json:"occurred_at,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Note           string `json:"note,omitempty"`
}

// SplitOutputRequest is one output of a split event.
type SplitOutputRequest struct {
	Resource string `json:"resource"`
	Quantity string `json:"quantity"`
}

// toEvent converts the wire shape into an engine event. Decimal strings
// parse exactly; a malformed number is a client error, reported with the
// offending field name.
func (req EventRequest) toEvent() (engine.Event, error) {
	ev := engine.Event{
		Kind:           engine.EventKind(req.Kind),
		Resource:       engine.ResourceID(req.Resource),
		Source:         engine.ResourceID(req.Source),
		Destination:    engine.ResourceID(req.Destination),
		Process:        engine.ProcessID(req.Process),
		FromProcess:    engine.ProcessID(req.FromProcess),
		ToProcess:      engine.ProcessID(req.ToProcess),
		Provider:       engine.AgentID(req.Provider),
		Receiver:       engine.AgentID(req.Receiver),
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Note,
	}

	for _, in := range req.Inputs {
		ev.Inputs = append(ev.Inputs, engine.ResourceID(in))
	}

	if req.Quantity != "" {
		v, err := parseWireDecimal("quantity", req.Quantity)
		if err != nil {
			return engine.Event{}, err
		}
		ev.Quantity = engine.NewQuantityFromDecimal(v, engine.Unit(req.Unit))
	}
	if req.CostIn != "" {
		v, err := parseWireDecimal("cost_in", req.CostIn)
		if err != nil {
			return engine.Event{}, err
		}
		ev.CostIn = engine.NewCostFromDecimal(v)
	}
	if req.MoveCost != "" {
		v, err := parseWireDecimal("move_cost", req.MoveCost)
		if err != nil {
			return engine.Event{}, err
		}
		ev.MoveCost = engine.NewCostFromDecimal(v)
	}

	for _, out := range req.Outputs {
		v, err := parseWireDecimal("outputs.quantity", out.Quantity)
		if err != nil {
			return engine.Event{}, err
		}
		ev.Outputs = append(ev.Outputs, engine.SplitOutput{
			Resource: engine.ResourceID(out.Resource),
			Quantity: engine.NewQuantityFromDecimal(v, engine.Unit(req.Unit)),
		})
	}

	if req.OccurredAt != "" {
		at, err := parseWireTime("occurred_at", req.OccurredAt)
		if err != nil {
			return engine.Event{}, err
		}
		ev.OccurredAt = at
	}

	return ev, nil
}

func parseWireDecimal(field, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: not a decimal: %q: %w", field, s, engine.ErrInvalidEvent)
	}
	return v, nil
}

func parseWireTime(field, s string) (time.Time, error) {
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: not an RFC3339 timestamp: %q: %w", field, s, engine.ErrInvalidEvent)
	}
	return at, nil
}

// =============================================================================
// LEDGER RESPONSES
// =============================================================================

// ResourceDTO represents one ledger entry.
type ResourceDTO struct {
	ID               string `json:"id"`
	Quantity         string `json:"quantity"`
	Unit             string `json:"unit"`
	CostBasis        string `json:"cost_basis"`
	CostBasisDisplay string `json:"cost_basis_display"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// UnitCostDTO is the derived per-unit cost of a resource.
type UnitCostDTO struct {
	ResourceID     string `json:"resource_id"`
	PerUnit        string `json:"per_unit"`
	PerUnitDisplay string `json:"per_unit_display"`
	Unit           string `json:"unit"`
}

// ProcessDTO represents a process and its cost pool.
type ProcessDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Policy      string   `json:"policy"`
	Weights     []string `json:"weights,omitempty"`
	Pool        string   `json:"pool"`
	PoolDisplay string   `json:"pool_display"`
}

// ConservationDTO is the ledger-wide conservation report.
type ConservationDTO struct {
	TotalOnLedger string `json:"total_on_ledger"`
	NetExternal   string `json:"net_external"`
	Drift         string `json:"drift"`
	Balanced      bool   `json:"balanced"`
}

// =============================================================================
// EVENT RESPONSES
// =============================================================================

// ResourceStateDTO is a resource's quantity and cost at one moment.
type ResourceStateDTO struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	Cost     string `json:"cost"`
}

// ResourceChangeDTO shows one resource before and after an event.
// Before is absent when the event created the entry.
type ResourceChangeDTO struct {
	ID     string            `json:"id"`
	Before *ResourceStateDTO `json:"before,omitempty"`
	After  ResourceStateDTO  `json:"after"`
}

// PoolChangeDTO shows one process pool before and after an event.
type PoolChangeDTO struct {
	ID     string `json:"id"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// DeltaDTO is the response to a committed event.
type DeltaDTO struct {
	EventID    string              `json:"event_id"`
	Kind       string              `json:"kind"`
	OccurredAt string              `json:"occurred_at"`
	RecordedAt string              `json:"recorded_at"`
	Resources  []ResourceChangeDTO `json:"resources"`
	Pools      []PoolChangeDTO     `json:"pools,omitempty"`
	External   string              `json:"external"`
	CostMoved  string              `json:"cost_moved"`
}

// EntryDTO represents one journal entry.
type EntryDTO struct {
	EventID    string   `json:"event_id"`
	Kind       string   `json:"kind"`
	OccurredAt string   `json:"occurred_at"`
	RecordedAt string   `json:"recorded_at"`
	Resources  []string `json:"resources"`
	Processes  []string `json:"processes,omitempty"`
	External   string   `json:"external"`
	CostMoved  string   `json:"cost_moved"`
	Note       string   `json:"note,omitempty"`
}

// =============================================================================
// ORDER BOOK
// =============================================================================

// CreateAgreementRequest is the request to open an agreement.
type CreateAgreementRequest struct {
	Name         string   `json:"name"`
	Note         string   `json:"note,omitempty"`
	Participants []string `json:"participants"`
}

// AgreementDTO represents an agreement.
type AgreementDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Note         string   `json:"note,omitempty"`
	Participants []string `json:"participants"`
	Closed       bool     `json:"closed"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// CreateCommitmentRequest is the request to add a commitment to an
// agreement. Quantity, cost_in and move_cost are exact decimal strings.
type CreateCommitmentRequest struct {
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Destination string `json:"destination,omitempty"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	CostIn      string `json:"cost_in,omitempty"`
	MoveCost    string `json:"move_cost,omitempty"`
	Provider    string `json:"provider"`
	Receiver    string `json:"receiver"`
	Due         string `json:"due,omitempty"`
	Note        string `json:"note,omitempty"`
}

// CommitmentDTO represents a commitment.
type CommitmentDTO struct {
	ID          string `json:"id"`
	AgreementID string `json:"agreement_id"`
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Destination string `json:"destination,omitempty"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	CostIn      string `json:"cost_in"`
	MoveCost    string `json:"move_cost"`
	Provider    string `json:"provider"`
	Receiver    string `json:"receiver"`
	Due         string `json:"due,omitempty"`
	Note        string `json:"note,omitempty"`
	Finished    bool   `json:"finished"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

// FulfillRequest carries the optional idempotency key for fulfillment.
type FulfillRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// FulfillResponseDTO is the result of fulfilling a commitment.
type FulfillResponseDTO struct {
	Delta      DeltaDTO      `json:"delta"`
	Commitment CommitmentDTO `json:"commitment"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toResourceDTO(r engine.Resource) ResourceDTO {
	return ResourceDTO{
		ID:               string(r.ID),
		Quantity:         r.Quantity.Value.String(),
		Unit:             string(r.Quantity.Unit),
		CostBasis:        r.CostBasis.String(),
		CostBasisDisplay: r.CostBasis.Display(displayPlaces),
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
}

func toProcessDTO(p engine.Process) ProcessDTO {
	dto := ProcessDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Policy:      string(p.Policy.Kind),
		Pool:        p.Pool.String(),
		PoolDisplay: p.Pool.Display(displayPlaces),
	}
	for _, w := range p.Policy.Weights {
		dto.Weights = append(dto.Weights, w.String())
	}
	return dto
}

func toResourceStateDTO(r engine.Resource) ResourceStateDTO {
	return ResourceStateDTO{
		Quantity: r.Quantity.Value.String(),
		Unit:     string(r.Quantity.Unit),
		Cost:     r.CostBasis.String(),
	}
}

func toDeltaDTO(d *engine.Delta) DeltaDTO {
	dto := DeltaDTO{
		EventID:    d.EventID,
		Kind:       string(d.Kind),
		OccurredAt: d.OccurredAt.Format(time.RFC3339),
		RecordedAt: d.RecordedAt.Format(time.RFC3339),
		Resources:  make([]ResourceChangeDTO, 0, len(d.Resources)),
		External:   d.External.String(),
		CostMoved:  d.CostMoved.String(),
	}
	for _, rc := range d.Resources {
		change := ResourceChangeDTO{
			ID:    string(rc.ID),
			After: toResourceStateDTO(rc.After),
		}
		if rc.Before != nil {
			before := toResourceStateDTO(*rc.Before)
			change.Before = &before
		}
		dto.Resources = append(dto.Resources, change)
	}
	for _, pc := range d.Pools {
		dto.Pools = append(dto.Pools, PoolChangeDTO{
			ID:     string(pc.ID),
			Before: pc.Before.String(),
			After:  pc.After.String(),
		})
	}
	return dto
}

func toEntryDTO(e engine.Entry) EntryDTO {
	dto := EntryDTO{
		EventID:    e.EventID,
		Kind:       string(e.Kind),
		OccurredAt: e.OccurredAt.Format(time.RFC3339),
		RecordedAt: e.RecordedAt.Format(time.RFC3339),
		Resources:  make([]string, 0, len(e.Resources)),
		External:   e.External.String(),
		CostMoved:  e.CostMoved.String(),
		Note:       e.Note,
	}
	for _, id := range e.Resources {
		dto.Resources = append(dto.Resources, string(id))
	}
	for _, id := range e.Processes {
		dto.Processes = append(dto.Processes, string(id))
	}
	return dto
}

func toEntryDTOs(entries []engine.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toAgreementDTO(a orders.Agreement) AgreementDTO {
	dto := AgreementDTO{
		ID:           a.ID,
		Name:         a.Name,
		Note:         a.Note,
		Participants: make([]string, 0, len(a.Participants)),
		Closed:       a.Closed,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
	for _, p := range a.Participants {
		dto.Participants = append(dto.Participants, string(p))
	}
	return dto
}

func toCommitmentDTO(c orders.Commitment) CommitmentDTO {
	dto := CommitmentDTO{
		ID:          c.ID,
		AgreementID: c.AgreementID,
		Action:      string(c.Action),
		Resource:    string(c.Resource),
		Destination: string(c.Destination),
		Quantity:    c.Quantity.Value.String(),
		Unit:        string(c.Quantity.Unit),
		CostIn:      c.CostIn.String(),
		MoveCost:    c.MoveCost.String(),
		Provider:    string(c.Provider),
		Receiver:    string(c.Receiver),
		Note:        c.Note,
		Finished:    c.Finished,
	}
	if !c.Due.IsZero() {
		dto.Due = c.Due.Format(time.RFC3339)
	}
	if !c.FinishedAt.IsZero() {
		dto.FinishedAt = c.FinishedAt.Format(time.RFC3339)
	}
	return dto
}
