/*
orders.go - Agreement and commitment lifecycle

PURPOSE:
  The Book tracks agreements between agents and the commitments made
  under them. It is the promise layer: nothing here moves cost until
  Fulfill submits the committed event to the engine.

KEY RULES:
  1. Commitments only between parties - provider and receiver must both
     participate in the agreement (ErrNotParty)
  2. A commitment's shape is validated when added, not when fulfilled,
     so a bad promise is caught while the counterparty is still around
  3. Fulfill is once-only (ErrAlreadyFulfilled) and price-checked: a
     commitment carrying an agreed MoveCost is rejected if the cost
     that would actually move deviates from it (ErrCommitmentMismatch)
  4. Closing an agreement stops new commitments (ErrAgreementClosed);
     outstanding ones may still be fulfilled

NO I/O:
  Like the engine, the Book holds state in memory and performs no I/O.
  Persistence happens in the caller; Restore loads saved state at
  startup.

SEE ALSO:
  - types.go: Agreement, Commitment, and the action-to-event mapping
*/
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridian/cost-engine/engine"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAgreementNotFound is returned when a referenced agreement doesn't exist.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrCommitmentNotFound is returned when a referenced commitment doesn't exist.
	ErrCommitmentNotFound = errors.New("commitment not found")

	// ErrNotParty is returned when a commitment names a provider or receiver
	// who does not participate in the agreement.
	ErrNotParty = errors.New("agent is not a party to the agreement")

	// ErrAlreadyFulfilled is returned on a second fulfillment attempt.
	ErrAlreadyFulfilled = errors.New("commitment already fulfilled")

	// ErrAgreementClosed is returned when adding a commitment to a closed
	// agreement.
	ErrAgreementClosed = errors.New("agreement is closed")

	// ErrUnknownAction is returned for an action outside the order set.
	ErrUnknownAction = errors.New("unknown order action")

	// ErrCommitmentMismatch is returned when a commitment's promised terms
	// don't match what fulfillment would actually do.
	ErrCommitmentMismatch = errors.New("commitment does not match its terms")

	// ErrNoParticipants is returned when an agreement names fewer than two
	// distinct participants.
	ErrNoParticipants = errors.New("agreement needs at least two distinct participants")
)

// CommitmentMismatchError reports an agreed-versus-actual price deviation.
type CommitmentMismatchError struct {
	CommitmentID string
	Agreed       engine.Cost
	Actual       engine.Cost
}

func (e *CommitmentMismatchError) Error() string {
	return fmt.Sprintf("commitment %s: agreed cost %v, fulfillment would move %v",
		e.CommitmentID, e.Agreed.Value, e.Actual.Value)
}

func (e *CommitmentMismatchError) Unwrap() error {
	return ErrCommitmentMismatch
}

// =============================================================================
// BOOK
// =============================================================================

// Book holds agreements and commitments and fulfills them against one
// engine. Safe for concurrent use.
type Book struct {
	engine *engine.Engine

	mu          sync.RWMutex
	agreements  map[string]*Agreement
	commitments map[string]*Commitment

	now func() time.Time
}

func NewBook(e *engine.Engine) *Book {
	return &Book{
		engine:      e,
		agreements:  make(map[string]*Agreement),
		commitments: make(map[string]*Commitment),
		now:         time.Now,
	}
}

// =============================================================================
// AGREEMENTS
// =============================================================================

// CreateAgreement registers a new agreement between the given agents.
func (b *Book) CreateAgreement(name, note string, participants []engine.AgentID) (Agreement, error) {
	distinct := make(map[engine.AgentID]bool, len(participants))
	for _, p := range participants {
		if p != "" {
			distinct[p] = true
		}
	}
	if len(distinct) < 2 {
		return Agreement{}, ErrNoParticipants
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	a := &Agreement{
		ID:           uuid.NewString(),
		Name:         name,
		Note:         note,
		Participants: append([]engine.AgentID(nil), participants...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.agreements[a.ID] = a
	return *a, nil
}

// Agreement returns a copy of one agreement.
func (b *Book) Agreement(id string) (Agreement, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.agreements[id]
	if !ok {
		return Agreement{}, fmt.Errorf("%s: %w", id, ErrAgreementNotFound)
	}
	return *a, nil
}

// Agreements returns every agreement, oldest first.
func (b *Book) Agreements() []Agreement {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Agreement, 0, len(b.agreements))
	for _, a := range b.agreements {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseAgreement stops new commitments under the agreement. Idempotent.
func (b *Book) CloseAgreement(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.agreements[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrAgreementNotFound)
	}
	if !a.Closed {
		a.Closed = true
		a.UpdatedAt = b.now()
	}
	return nil
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// AddCommitment records a promise under an agreement. The commitment's
// shape is validated here: the action must map to a well-formed event
// and both named agents must be parties to the agreement.
func (b *Book) AddCommitment(c Commitment) (Commitment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.agreements[c.AgreementID]
	if !ok {
		return Commitment{}, fmt.Errorf("%s: %w", c.AgreementID, ErrAgreementNotFound)
	}
	if a.Closed {
		return Commitment{}, fmt.Errorf("%s: %w", c.AgreementID, ErrAgreementClosed)
	}
	if !a.HasParticipant(c.Provider) {
		return Commitment{}, fmt.Errorf("provider %s: %w", c.Provider, ErrNotParty)
	}
	if !a.HasParticipant(c.Receiver) {
		return Commitment{}, fmt.Errorf("receiver %s: %w", c.Receiver, ErrNotParty)
	}
	if c.MoveCost.IsNegative() {
		return Commitment{}, fmt.Errorf("agreed cost must not be negative: %w", ErrCommitmentMismatch)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	ev, err := c.ToEvent()
	if err != nil {
		return Commitment{}, err
	}
	if err := ev.Validate(); err != nil {
		return Commitment{}, err
	}

	now := b.now()
	c.Finished = false
	c.FinishedAt = time.Time{}
	c.CreatedAt = now
	c.UpdatedAt = now

	cp := c
	b.commitments[c.ID] = &cp
	return c, nil
}

// Commitment returns a copy of one commitment.
func (b *Book) Commitment(id string) (Commitment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.commitments[id]
	if !ok {
		return Commitment{}, fmt.Errorf("%s: %w", id, ErrCommitmentNotFound)
	}
	return *c, nil
}

// Commitments returns the agreement's commitments, oldest first.
func (b *Book) Commitments(agreementID string) []Commitment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Commitment, 0)
	for _, c := range b.commitments {
		if c.AgreementID == agreementID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// =============================================================================
// FULFILLMENT
// =============================================================================

// Fulfill submits the committed event to the engine and marks the
// commitment finished. The idempotency key travels on the event for the
// caller's journal. A commitment with an agreed MoveCost is price-checked
// against the cost the fulfillment would actually move, before anything
// mutates.
func (b *Book) Fulfill(ctx context.Context, id, idempotencyKey string) (*engine.Delta, Commitment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.commitments[id]
	if !ok {
		return nil, Commitment{}, fmt.Errorf("%s: %w", id, ErrCommitmentNotFound)
	}
	if c.Finished {
		return nil, *c, fmt.Errorf("%s: %w", id, ErrAlreadyFulfilled)
	}

	ev, err := c.ToEvent()
	if err != nil {
		return nil, *c, err
	}
	ev.IdempotencyKey = idempotencyKey

	if err := b.checkAgreedCost(c); err != nil {
		return nil, *c, err
	}

	delta, err := b.engine.SubmitEvent(ctx, ev)
	if err != nil {
		return nil, *c, err
	}

	now := b.now()
	c.Finished = true
	c.FinishedAt = now
	c.UpdatedAt = now
	return delta, *c, nil
}

// checkAgreedCost compares the commitment's agreed value against the cost
// its fulfillment would move right now. Zero MoveCost means unpriced and
// always passes.
func (b *Book) checkAgreedCost(c *Commitment) error {
	if c.MoveCost.IsZero() {
		return nil
	}

	var actual engine.Cost
	switch c.Action {
	case ActionAccept:
		actual = c.CostIn
	case ActionTransfer, ActionDeliver:
		r, err := b.engine.GetResource(c.Resource)
		if err != nil {
			return err
		}
		actual, err = engine.WithdrawCost(r.CostBasis, r.Quantity, c.Quantity, r.ID)
		if err != nil {
			return err
		}
	}

	if !actual.Equal(c.MoveCost) {
		return &CommitmentMismatchError{CommitmentID: c.ID, Agreed: c.MoveCost, Actual: actual}
	}
	return nil
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore loads persisted agreements and commitments at startup.
func (b *Book) Restore(agreements []Agreement, commitments []Commitment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range agreements {
		if _, exists := b.agreements[a.ID]; exists {
			return fmt.Errorf("restore: duplicate agreement %s", a.ID)
		}
		cp := a
		b.agreements[a.ID] = &cp
	}
	for _, c := range commitments {
		if _, exists := b.commitments[c.ID]; exists {
			return fmt.Errorf("restore: duplicate commitment %s", c.ID)
		}
		if _, ok := b.agreements[c.AgreementID]; !ok {
			return fmt.Errorf("restore: commitment %s references unknown agreement %s", c.ID, c.AgreementID)
		}
		cp := c
		b.commitments[c.ID] = &cp
	}
	return nil
}
