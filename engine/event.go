/*
event.go - The closed set of economic events

PURPOSE:
  Defines the tagged union of event kinds the engine understands, the one
  Event struct that carries them, and shape validation. Events are the ONLY
  way ledger state changes; there is no other mutation path.

EVENT TAXONOMY:
  Creation / boundary in:
    Produce  - new resource from a process (cost declared by caller)
    Raise    - inventory adjustment up (found stock, correction)
    Accept   - incoming half of a cross-ledger transfer

  Destruction / boundary out:
    Consume  - resource used up; cost leaves, or accrues to a process pool
    Lower    - inventory adjustment down (shrinkage, write-off)
    Deliver  - outgoing half of a cross-ledger transfer, or a pool-to-pool
               service delivery between processes

  Internal (conserving):
    Transfer - quantity and proportional cost move between resources
    Modify   - cost embodied into a resource without quantity change
    Combine  - several resources fully drain into one
    Split    - one resource divides across several outputs

SHAPE VS STATE:
  Validate() checks only what can be known without ledger state (required
  fields, signs, duplicates). Stateful checks (existence, units, balances)
  happen under lock in machine.go, always before any mutation.

SEE ALSO:
  - machine.go: Applies events with compensating rollback
  - conservation.go: Declares each kind's boundary behavior
*/
package engine

import (
	"time"
)

// =============================================================================
// EVENT KIND - Closed tagged union
// =============================================================================

type EventKind string

const (
	EventProduce  EventKind = "produce"
	EventConsume  EventKind = "consume"
	EventTransfer EventKind = "transfer"
	EventModify   EventKind = "modify"
	EventCombine  EventKind = "combine"
	EventSplit    EventKind = "split"
	EventRaise    EventKind = "raise"
	EventLower    EventKind = "lower"
	EventAccept   EventKind = "accept"
	EventDeliver  EventKind = "deliver"
)

// Kinds lists every event kind the engine accepts, in canonical order.
func Kinds() []EventKind {
	return []EventKind{
		EventProduce, EventConsume, EventTransfer, EventModify,
		EventCombine, EventSplit, EventRaise, EventLower,
		EventAccept, EventDeliver,
	}
}

// =============================================================================
// EVENT - Immutable input to the state machine
// =============================================================================

// Event is the single struct carrying all kinds. Which fields apply depends
// on Kind; Validate() rejects shapes that don't match their kind.
//
// Field use by kind:
//
//	Produce, Raise:  Resource, Quantity (>0), CostIn (>=0, required)
//	Accept:          Resource, Quantity (>0), CostIn (>=0, required)
//	Consume:         Resource, Quantity (>0); Process optional - when set,
//	                 the withdrawn cost accrues to that process's pool
//	                 instead of leaving the system
//	Lower:           Resource, Quantity (>0); cost always leaves
//	Deliver:         resource mode: Resource, Quantity (>0)
//	                 service mode: FromProcess, ToProcess, MoveCost (>=0)
//	Transfer:        Source, Destination, Quantity (>0)
//	Modify:          Resource plus either CostIn (>=0) or
//	                 FromProcess + MoveCost (>=0), not both
//	Combine:         Inputs (>=2, distinct), Destination
//	Split:           Source, Outputs (>=2, distinct, positive quantities);
//	                 Process optional - names the allocation policy, Equal
//	                 when absent
type Event struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time

	Resource    ResourceID
	Source      ResourceID
	Destination ResourceID
	Inputs      []ResourceID
	Outputs     []SplitOutput

	Quantity Quantity
	CostIn   Cost
	MoveCost Cost

	Process     ProcessID
	FromProcess ProcessID
	ToProcess   ProcessID

	// Agent identity is metadata here; authorization is the caller's concern.
	Provider AgentID
	Receiver AgentID

	CommitmentID   string
	IdempotencyKey string
	Note           string
}

// SplitOutput names one destination of a split and how much quantity it takes.
type SplitOutput struct {
	Resource ResourceID
	Quantity Quantity
}

// =============================================================================
// SHAPE VALIDATION
// =============================================================================

// Validate checks the event's shape without touching ledger state.
// Returns an *InvalidEventError (or *InvalidWeightsError via split checks)
// on the first problem found.
func (ev Event) Validate() error {
	switch ev.Kind {
	case EventProduce, EventRaise, EventAccept:
		if ev.Resource == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "resource", Reason: "required"}
		}
		if !ev.Quantity.IsPositive() {
			return &InvalidEventError{Kind: ev.Kind, Field: "quantity", Reason: "must be positive"}
		}
		if ev.CostIn.IsNegative() {
			return &InvalidEventError{Kind: ev.Kind, Field: "cost_in", Reason: "must not be negative"}
		}

	case EventConsume, EventLower:
		if ev.Resource == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "resource", Reason: "required"}
		}
		if !ev.Quantity.IsPositive() {
			return &InvalidEventError{Kind: ev.Kind, Field: "quantity", Reason: "must be positive"}
		}
		if ev.Kind == EventLower && ev.Process != "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "process", Reason: "lower never accrues to a pool"}
		}

	case EventTransfer:
		if ev.Source == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "source", Reason: "required"}
		}
		if ev.Destination == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "destination", Reason: "required"}
		}
		if ev.Source == ev.Destination {
			return &InvalidEventError{Kind: ev.Kind, Field: "destination", Reason: "must differ from source"}
		}
		if !ev.Quantity.IsPositive() {
			return &InvalidEventError{Kind: ev.Kind, Field: "quantity", Reason: "must be positive"}
		}

	case EventModify:
		if ev.Resource == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "resource", Reason: "required"}
		}
		fromPool := ev.FromProcess != ""
		if fromPool {
			if ev.MoveCost.IsNegative() {
				return &InvalidEventError{Kind: ev.Kind, Field: "move_cost", Reason: "must not be negative"}
			}
			if !ev.CostIn.IsZero() {
				return &InvalidEventError{Kind: ev.Kind, Field: "cost_in", Reason: "cost_in and from_process are exclusive"}
			}
		} else {
			if ev.CostIn.IsNegative() {
				return &InvalidEventError{Kind: ev.Kind, Field: "cost_in", Reason: "must not be negative"}
			}
			if !ev.MoveCost.IsZero() {
				return &InvalidEventError{Kind: ev.Kind, Field: "move_cost", Reason: "requires from_process"}
			}
		}

	case EventCombine:
		if ev.Destination == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "destination", Reason: "required"}
		}
		if len(ev.Inputs) < 2 {
			return &InvalidEventError{Kind: ev.Kind, Field: "inputs", Reason: "at least two required"}
		}
		seen := make(map[ResourceID]bool, len(ev.Inputs))
		for _, id := range ev.Inputs {
			if id == "" {
				return &InvalidEventError{Kind: ev.Kind, Field: "inputs", Reason: "empty id"}
			}
			if id == ev.Destination {
				return &InvalidEventError{Kind: ev.Kind, Field: "inputs", Reason: "destination cannot be an input"}
			}
			if seen[id] {
				return ErrDuplicateResource
			}
			seen[id] = true
		}

	case EventSplit:
		if ev.Source == "" {
			return &InvalidEventError{Kind: ev.Kind, Field: "source", Reason: "required"}
		}
		if len(ev.Outputs) < 2 {
			return &InvalidEventError{Kind: ev.Kind, Field: "outputs", Reason: "at least two required"}
		}
		seen := make(map[ResourceID]bool, len(ev.Outputs))
		for _, out := range ev.Outputs {
			if out.Resource == "" {
				return &InvalidEventError{Kind: ev.Kind, Field: "outputs", Reason: "empty id"}
			}
			if out.Resource == ev.Source {
				return &InvalidEventError{Kind: ev.Kind, Field: "outputs", Reason: "source cannot be an output; the remainder stays on it"}
			}
			if seen[out.Resource] {
				return ErrDuplicateResource
			}
			seen[out.Resource] = true
			if !out.Quantity.IsPositive() {
				return &InvalidEventError{Kind: ev.Kind, Field: "outputs", Reason: "quantities must be positive"}
			}
		}

	case EventDeliver:
		service := ev.FromProcess != "" || ev.ToProcess != ""
		if service {
			if ev.FromProcess == "" || ev.ToProcess == "" {
				return &InvalidEventError{Kind: ev.Kind, Field: "from_process", Reason: "service delivery needs both from_process and to_process"}
			}
			if ev.FromProcess == ev.ToProcess {
				return &InvalidEventError{Kind: ev.Kind, Field: "to_process", Reason: "must differ from from_process"}
			}
			if ev.MoveCost.IsNegative() {
				return &InvalidEventError{Kind: ev.Kind, Field: "move_cost", Reason: "must not be negative"}
			}
			if ev.Resource != "" {
				return &InvalidEventError{Kind: ev.Kind, Field: "resource", Reason: "service delivery takes no resource"}
			}
		} else {
			if ev.Resource == "" {
				return &InvalidEventError{Kind: ev.Kind, Field: "resource", Reason: "required"}
			}
			if !ev.Quantity.IsPositive() {
				return &InvalidEventError{Kind: ev.Kind, Field: "quantity", Reason: "must be positive"}
			}
		}

	default:
		return &InvalidEventError{Kind: ev.Kind, Field: "kind", Reason: "unknown event kind"}
	}

	return nil
}

// Internal reports whether the event conserves value within the system.
// Internal events must net to exactly zero across touched resources and
// pools; boundary events net to their declared external amount.
func (ev Event) Internal() bool {
	switch ev.Kind {
	case EventTransfer, EventCombine, EventSplit:
		return true
	case EventConsume:
		// Consuming into a process keeps the cost inside the system.
		return ev.Process != ""
	case EventModify:
		return ev.FromProcess != ""
	case EventDeliver:
		return ev.FromProcess != "" && ev.ToProcess != ""
	default:
		return false
	}
}
