// Package orders layers agreements and commitments over the cost engine.
// An agreement groups the parties to an exchange; a commitment is one
// promised future event within it. Fulfilling a commitment submits the
// real event to the engine and marks the promise kept.
package orders

import (
	"fmt"
	"time"

	"github.com/meridian/cost-engine/engine"
)

// =============================================================================
// ORDER ACTIONS
// =============================================================================

// OrderAction is the subset of event kinds a commitment may promise.
// Internal rearrangement (combine, split, modify) is operational, not
// something agents promise each other.
type OrderAction string

const (
	ActionTransfer OrderAction = "transfer"
	ActionDeliver  OrderAction = "deliver"
	ActionAccept   OrderAction = "accept"
)

// Actions lists every order action, in canonical order.
func Actions() []OrderAction {
	return []OrderAction{ActionTransfer, ActionDeliver, ActionAccept}
}

// =============================================================================
// AGREEMENT
// =============================================================================

// Agreement groups commitments between participating agents. Closing an
// agreement stops new commitments; outstanding ones may still be
// fulfilled.
type Agreement struct {
	ID           string
	Name         string
	Note         string
	Participants []engine.AgentID
	Closed       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasParticipant reports whether the agent is a party to this agreement.
func (a *Agreement) HasParticipant(id engine.AgentID) bool {
	for _, p := range a.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// =============================================================================
// COMMITMENT
// =============================================================================

// Commitment is one promised event within an agreement.
//
// Field use by action:
//
//	Transfer: Resource (source), Destination, Quantity
//	Deliver:  Resource, Quantity - leaves the ledger toward Receiver
//	Accept:   Resource, Quantity, CostIn - arrives from Provider at the
//	          declared cost
//
// MoveCost, when non-zero, is the agreed value of the exchange; Fulfill
// rejects the commitment if the cost that would actually move deviates
// from it. Due is advisory and never enforced by the engine.
type Commitment struct {
	ID          string
	AgreementID string
	Action      OrderAction

	Resource    engine.ResourceID
	Destination engine.ResourceID
	Quantity    engine.Quantity
	CostIn      engine.Cost
	MoveCost    engine.Cost

	Provider engine.AgentID
	Receiver engine.AgentID

	Due        time.Time
	Note       string
	Finished   bool
	FinishedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToEvent builds the engine event this commitment promises. The result
// still goes through the engine's own validation on submit.
func (c *Commitment) ToEvent() (engine.Event, error) {
	switch c.Action {
	case ActionTransfer:
		if c.Destination == "" {
			return engine.Event{}, fmt.Errorf("transfer commitment needs a destination: %w", ErrCommitmentMismatch)
		}
		return engine.Event{
			Kind:         engine.EventTransfer,
			Source:       c.Resource,
			Destination:  c.Destination,
			Quantity:     c.Quantity,
			Provider:     c.Provider,
			Receiver:     c.Receiver,
			CommitmentID: c.ID,
			Note:         c.Note,
		}, nil

	case ActionDeliver:
		return engine.Event{
			Kind:         engine.EventDeliver,
			Resource:     c.Resource,
			Quantity:     c.Quantity,
			Provider:     c.Provider,
			Receiver:     c.Receiver,
			CommitmentID: c.ID,
			Note:         c.Note,
		}, nil

	case ActionAccept:
		return engine.Event{
			Kind:         engine.EventAccept,
			Resource:     c.Resource,
			Quantity:     c.Quantity,
			CostIn:       c.CostIn,
			Provider:     c.Provider,
			Receiver:     c.Receiver,
			CommitmentID: c.ID,
			Note:         c.Note,
		}, nil
	}

	return engine.Event{}, fmt.Errorf("%q: %w", c.Action, ErrUnknownAction)
}
