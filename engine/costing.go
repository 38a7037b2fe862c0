/*
costing.go - Weighted-average cost basis arithmetic

PURPOSE:
  The three computations that define how cost follows quantity:

    1. Deposit: cost entering a resource simply accumulates (no division)
    2. Withdraw: cost leaving a resource is the proportional share of the
       basis, with a deterministic truncation rule
    3. Per-unit cost: basis / quantity, derived on demand, never stored

THE WITHDRAWAL RULE:
  costOut = basis * qtyOut / qty

  Division can be inexact (a basis of 10 split three ways). The rule:

    - Full drain (qtyOut == qty): costOut is EXACTLY the whole basis.
      No residue is ever stranded on an emptied resource.
    - Partial: the quotient is truncated at scale 12. costOut is then
      never more than the true share, and the sub-scale remainder stays
      on the source resource where later withdrawals pick it up.

  Truncation (not rounding) is what makes conservation provable: the
  amount removed plus the amount retained always equals the old basis,
  with no epsilon analysis.

WHY SCALE 12:
  Deep enough that repeated partial withdrawals lose nothing a currency
  boundary could see, shallow enough that values stay printable. The
  scale is internal; boundary rendering still uses banker's rounding.

SEE ALSO:
  - allocation.go: Divides a withdrawn aggregate across outputs
  - machine.go: Calls these under the event lock
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CostScale is the fixed internal scale for truncated divisions.
const CostScale int32 = 12

// =============================================================================
// WITHDRAWAL - Proportional cost leaving a resource
// =============================================================================

// WithdrawCost computes the cost that leaves when qtyOut is removed from a
// resource holding qty with the given basis.
//
// Errors:
//   - ErrUnitMismatch when qty and qtyOut disagree on unit
//   - ErrInsufficientQuantity when qtyOut exceeds qty (including any
//     removal from a zero-quantity resource)
func WithdrawCost(basis Cost, qty, qtyOut Quantity, resource ResourceID) (Cost, error) {
	if !qtyOut.IsPositive() {
		return Cost{}, fmt.Errorf("withdraw quantity must be positive: %w", ErrInvalidEvent)
	}
	if !qty.SameUnit(qtyOut) {
		return Cost{}, fmt.Errorf("withdraw %s in %s from %s: %w",
			qtyOut.Value, qtyOut.Unit, qty.Unit, ErrUnitMismatch)
	}
	if qtyOut.GreaterThan(qty) {
		return Cost{}, &InsufficientQuantityError{
			Resource:  resource,
			Available: qty,
			Requested: qtyOut,
		}
	}

	// Full drain takes the whole basis exactly.
	if qtyOut.Value.Equal(qty.Value) {
		return basis, nil
	}

	// Partial: truncate basis*qtyOut/qty at CostScale. The discarded
	// remainder stays on the resource.
	num := basis.Value.Mul(qtyOut.Value)
	q, _ := num.QuoRem(qty.Value, CostScale)
	return Cost{Value: q}, nil
}

// =============================================================================
// PER-UNIT COST - Derived, never stored
// =============================================================================

// UnitCost derives basis/qty. The result is for reporting only and must
// never be multiplied back into ledger state; all ledger mutations work
// from the total basis.
func UnitCost(basis Cost, qty Quantity) (decimal.Decimal, error) {
	if qty.IsZero() {
		return decimal.Decimal{}, ErrZeroQuantity
	}
	return basis.Value.Div(qty.Value), nil
}

// UnitCostOf is the resource-level convenience form.
func UnitCostOf(r Resource) (decimal.Decimal, error) {
	return UnitCost(r.CostBasis, r.Quantity)
}
