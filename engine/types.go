/*
Package engine provides the cost-tracking and allocation core.

PURPOSE:
  This package contains the domain-agnostic machinery for tracking economic
  resources and the cost embodied in them. Whether the resources are loaves
  of bread, barrels of oil, or hours of labor, the same engine handles
  quantity tracking, weighted-average cost basis, cost allocation across
  outputs, and conservation checking.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: An amount with a unit (e.g., 12 each, 4.5 kg)
  - Cost: Accumulated value in the system's single unit of account
  - Resource: A ledger entry pairing a quantity with its cost basis
  - Process: A named activity with a cost pool and an allocation policy
  - AllocationPolicy: How aggregate cost is divided across outputs

DESIGN PRINCIPLES:
  1. Exactness: decimal.Decimal everywhere; no floats in the engine
  2. Cost basis, not unit price: resources carry TOTAL accumulated cost;
     per-unit cost is always derived on demand
  3. Type Safety: Strong typing for IDs prevents mixing resource/process IDs
  4. Boundary rounding only: values are rendered with banker's rounding at
     the API edge, never inside the engine

USAGE:
  qty := engine.NewQuantity(12, engine.UnitEach)
  cost := engine.NewCost(30)
  ev := engine.Event{
      Kind:     engine.EventProduce,
      Resource: "bread-batch-1",
      Quantity: qty,
      CostIn:   cost,
  }

SEE ALSO:
  - event.go: The closed set of economic event kinds
  - costing.go: Weighted-average cost basis arithmetic
  - allocation.go: Policy-driven cost allocation
  - machine.go: Event application with rollback
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Amount with unit
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitEach     Unit = "each"
	UnitKilogram Unit = "kg"
	UnitLiter    Unit = "liter"
	UnitHour     Unit = "hour"
)

func NewQuantity(value float64, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewQuantityFromInt(value int, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewQuantityFromDecimal(value decimal.Decimal, unit Unit) Quantity {
	return Quantity{Value: value, Unit: unit}
}

func (q Quantity) Zero() Quantity              { return Quantity{Value: decimal.Zero, Unit: q.Unit} }
func (q Quantity) Add(b Quantity) Quantity     { return Quantity{Value: q.Value.Add(b.Value), Unit: q.Unit} }
func (q Quantity) Sub(b Quantity) Quantity     { return Quantity{Value: q.Value.Sub(b.Value), Unit: q.Unit} }
func (q Quantity) Neg() Quantity               { return Quantity{Value: q.Value.Neg(), Unit: q.Unit} }
func (q Quantity) IsNegative() bool            { return q.Value.IsNegative() }
func (q Quantity) IsZero() bool                { return q.Value.IsZero() }
func (q Quantity) IsPositive() bool            { return q.Value.IsPositive() }
func (q Quantity) GreaterThan(b Quantity) bool { return q.Value.GreaterThan(b.Value) }
func (q Quantity) LessThan(b Quantity) bool    { return q.Value.LessThan(b.Value) }
func (q Quantity) Equal(b Quantity) bool       { return q.Unit == b.Unit && q.Value.Equal(b.Value) }
func (q Quantity) SameUnit(b Quantity) bool    { return q.Unit == b.Unit }
func (q Quantity) String() string              { return q.Value.String() + " " + string(q.Unit) }

// =============================================================================
// COST - Value in the single unit of account
// =============================================================================

// Cost is always a TOTAL accumulated amount, never a per-unit price.
// Per-unit cost is derived on demand (see costing.go) and never stored,
// so no precision is lost to premature division.
type Cost struct {
	Value decimal.Decimal
}

func NewCost(value float64) Cost {
	return Cost{Value: decimal.NewFromFloat(value)}
}

func NewCostFromInt(value int) Cost {
	return Cost{Value: decimal.NewFromInt(int64(value))}
}

func NewCostFromDecimal(value decimal.Decimal) Cost {
	return Cost{Value: value}
}

func ZeroCost() Cost { return Cost{Value: decimal.Zero} }

func (c Cost) Add(b Cost) Cost             { return Cost{Value: c.Value.Add(b.Value)} }
func (c Cost) Sub(b Cost) Cost             { return Cost{Value: c.Value.Sub(b.Value)} }
func (c Cost) Neg() Cost                   { return Cost{Value: c.Value.Neg()} }
func (c Cost) IsNegative() bool            { return c.Value.IsNegative() }
func (c Cost) IsZero() bool                { return c.Value.IsZero() }
func (c Cost) IsPositive() bool            { return c.Value.IsPositive() }
func (c Cost) GreaterThan(b Cost) bool     { return c.Value.GreaterThan(b.Value) }
func (c Cost) LessThan(b Cost) bool        { return c.Value.LessThan(b.Value) }
func (c Cost) Equal(b Cost) bool           { return c.Value.Equal(b.Value) }
func (c Cost) String() string              { return c.Value.String() }

// Display renders the cost with banker's rounding at the given scale.
// This is the ONLY rounding the engine ever exposes; use it at the API
// boundary, never feed the result back into the ledger.
func (c Cost) Display(places int32) string { return c.Value.StringFixedBank(places) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID string
type ProcessID string
type AgentID string

// =============================================================================
// RESOURCE - Ledger entry: quantity + accumulated cost basis
// =============================================================================

// Resource pairs a physical quantity with the total cost embodied in it.
// Invariants (enforced by the ledger, see ledger.go):
//   - Quantity never negative
//   - CostBasis never negative unless AllowNegativeCost is set
//
// Entries are never deleted: a fully consumed resource remains with zero
// quantity and zero cost so its history stays addressable.
type Resource struct {
	ID        ResourceID
	Quantity  Quantity
	CostBasis Cost

	// AllowNegativeCost permits a negative basis for correction entries.
	AllowNegativeCost bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PROCESS - Activity with a cost pool and an allocation policy
// =============================================================================

// Process represents a transformation activity (baking, assembly, a service
// engagement). Costs consumed "into" a process accumulate in its Pool until
// they are drawn back out into output resources or delivered to another
// process.
type Process struct {
	ID     ProcessID
	Name   string
	Policy AllocationPolicy

	// Pool is the cost accumulated by consuming inputs into this process.
	Pool Cost

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ALLOCATION POLICY - How aggregate cost divides across outputs
// =============================================================================

type PolicyKind string

const (
	// AllocEqual divides cost evenly across outputs.
	AllocEqual PolicyKind = "equal"

	// AllocProportional divides cost in proportion to output quantities.
	AllocProportional PolicyKind = "proportional_to_quantity"

	// AllocWeighted divides cost by caller-supplied weights.
	AllocWeighted PolicyKind = "weighted"
)

type AllocationPolicy struct {
	Kind PolicyKind

	// Weights apply only to AllocWeighted. Count must match the number of
	// outputs at allocation time; each weight must be >= 0 and the sum > 0.
	Weights []decimal.Decimal
}

func EqualPolicy() AllocationPolicy {
	return AllocationPolicy{Kind: AllocEqual}
}

func ProportionalPolicy() AllocationPolicy {
	return AllocationPolicy{Kind: AllocProportional}
}

func WeightedPolicy(weights ...decimal.Decimal) AllocationPolicy {
	return AllocationPolicy{Kind: AllocWeighted, Weights: weights}
}
