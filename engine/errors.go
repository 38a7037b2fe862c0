/*
errors.go - Centralized error types for the cost engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Collaborating packages (orders, api, store) wrap these with their own
  context rather than inventing parallel error sets.

ERROR CATEGORIES:
  1. Ledger errors - Guarded-state violations (underflow, not found)
  2. Event errors - Malformed or economically invalid events
  3. Allocation errors - Bad weights, nothing to divide by
  4. Conservation errors - Value created or destroyed unexpectedly

USAGE:
  Callers dispatch on sentinels:

    if errors.Is(err, engine.ErrInsufficientQuantity) {
        // 4xx to the client
    }

  and unwrap structured errors for detail:

    var iqe *engine.InsufficientQuantityError
    if errors.As(err, &iqe) {
        log.Printf("short by %v", iqe.Shortfall())
    }

SEE ALSO:
  - ledger.go: Raises underflow and not-found errors
  - machine.go: Raises event and conservation errors
  - allocation.go: Raises weight errors
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrResourceNotFound is returned when a referenced resource doesn't exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrProcessNotFound is returned when a referenced process doesn't exist.
	ErrProcessNotFound = errors.New("process not found")

	// ErrQuantityUnderflow is returned when a delta would drive a resource
	// quantity below zero. This is a guarded-state violation, not an
	// economic check; see ErrInsufficientQuantity for the economic variant.
	ErrQuantityUnderflow = errors.New("quantity underflow")

	// ErrCostUnderflow is returned when a delta would drive a cost basis or
	// process pool below zero and negative cost is not allowed.
	ErrCostUnderflow = errors.New("cost underflow")

	// ErrInsufficientQuantity is returned when an event asks for more
	// quantity than a resource holds.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrInvalidWeights is returned when allocation weights are malformed:
	// wrong count, negative entries, or a non-positive sum.
	ErrInvalidWeights = errors.New("invalid allocation weights")

	// ErrConservationViolation is returned when an applied event does not
	// net to its declared boundary amount. The event is rolled back; this
	// indicates an engine defect, not bad input.
	ErrConservationViolation = errors.New("conservation violation")

	// ErrZeroQuantity is returned when per-unit cost is requested for a
	// resource with zero quantity.
	ErrZeroQuantity = errors.New("per-unit cost undefined for zero quantity")

	// ErrUnitMismatch is returned when an event would mix quantities of
	// different units.
	ErrUnitMismatch = errors.New("unit mismatch")

	// ErrInvalidEvent is returned when an event's shape is malformed:
	// missing fields, non-positive quantities, negative costs.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrDuplicateResource is returned when the same resource appears twice
	// in a combine input list or split output list.
	ErrDuplicateResource = errors.New("duplicate resource in event")

	// ErrDuplicateIdempotencyKey is returned when a journal entry with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientQuantityError reports an overdraw attempt.
type InsufficientQuantityError struct {
	Resource  ResourceID
	Available Quantity
	Requested Quantity
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity on %s: available %v, requested %v",
		e.Resource, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientQuantityError) Unwrap() error {
	return ErrInsufficientQuantity
}

func (e *InsufficientQuantityError) Shortfall() Quantity {
	return e.Requested.Sub(e.Available)
}

// QuantityUnderflowError reports a delta that would make quantity negative.
type QuantityUnderflowError struct {
	Resource ResourceID
	Current  Quantity
	Delta    Quantity
}

func (e *QuantityUnderflowError) Error() string {
	return fmt.Sprintf("quantity underflow on %s: current %v, delta %v",
		e.Resource, e.Current.Value, e.Delta.Value)
}

func (e *QuantityUnderflowError) Unwrap() error {
	return ErrQuantityUnderflow
}

// CostUnderflowError reports a delta that would make a cost basis or pool
// negative. Target names the resource or process involved.
type CostUnderflowError struct {
	Target  string
	Current Cost
	Delta   Cost
}

func (e *CostUnderflowError) Error() string {
	return fmt.Sprintf("cost underflow on %s: current %v, delta %v",
		e.Target, e.Current.Value, e.Delta.Value)
}

func (e *CostUnderflowError) Unwrap() error {
	return ErrCostUnderflow
}

// InvalidWeightsError reports why an allocation weight set was rejected.
type InvalidWeightsError struct {
	Reason string
}

func (e *InvalidWeightsError) Error() string {
	return fmt.Sprintf("invalid allocation weights: %s", e.Reason)
}

func (e *InvalidWeightsError) Unwrap() error {
	return ErrInvalidWeights
}

// ConservationViolationError reports the drift an event produced.
type ConservationViolationError struct {
	EventID  string
	Kind     EventKind
	Expected Cost
	Actual   Cost
}

func (e *ConservationViolationError) Error() string {
	return fmt.Sprintf("conservation violation in %s event %s: expected net %v, got %v (drift %v)",
		e.Kind, e.EventID, e.Expected.Value, e.Actual.Value, e.Drift().Value)
}

func (e *ConservationViolationError) Unwrap() error {
	return ErrConservationViolation
}

func (e *ConservationViolationError) Drift() Cost {
	return e.Actual.Sub(e.Expected)
}

// InvalidEventError reports which field of an event failed shape validation.
type InvalidEventError struct {
	Kind   EventKind
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid %s event: %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *InvalidEventError) Unwrap() error {
	return ErrInvalidEvent
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource or process.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrProcessNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// and should map to a 4xx response.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrInvalidWeights) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrUnitMismatch) ||
		errors.Is(err, ErrDuplicateResource) ||
		errors.Is(err, ErrZeroQuantity) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrQuantityUnderflow) ||
		errors.Is(err, ErrCostUnderflow)
}

// IsFatal returns true if the error indicates an engine defect rather than
// bad input. Fatal errors should page someone.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConservationViolation)
}
