/*
allocation.go - Policy-driven cost allocation across outputs

PURPOSE:
  When one aggregate cost must be divided across several outputs (a split,
  or a process draining its pool into products), this file decides who gets
  how much. Three policies:

    Equal                   every output gets the same share
    ProportionalToQuantity  shares follow output quantities
    Weighted                shares follow caller-supplied weights

THE REMAINDER RULE:
  Exact division is often impossible (10 across 3 outputs). Each share is
  the TRUNCATED quotient at scale 12:

    share[i] = trunc(aggregate * w[i] / sum(w), 12)

  so sum(shares) <= aggregate, exactly. The non-negative residual

    aggregate - sum(shares)

  goes to the first output (input order) whose weight is positive. Under
  Equal that is literally the first output. The rule is deterministic:
  same inputs, same shares, on every run and every platform.

INVARIANT:
  sum(result) == aggregate, exactly, for every policy. Allocation never
  creates or destroys cost; it only divides it.

EXAMPLE:
  10 split equally across 3 outputs at scale 12:
    shares = [3.333333333333, 3.333333333333, 3.333333333333]
    residual = 0.000000000001 -> first output
    result  = [3.333333333334, 3.333333333333, 3.333333333333]

SEE ALSO:
  - costing.go: Produces the aggregate being divided
  - machine.go: Split events route through Allocate
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION TARGET - One output and its quantity
// =============================================================================

// AllocationTarget names one output. Quantity participates only under
// ProportionalToQuantity; the other policies ignore it.
type AllocationTarget struct {
	Resource ResourceID
	Quantity Quantity
}

// =============================================================================
// ALLOCATE - Divide an aggregate cost, conserving it exactly
// =============================================================================

// Allocate divides aggregate across targets per the policy. The returned
// slice is index-aligned with targets and sums to aggregate exactly.
//
// Errors (all unwrap to ErrInvalidWeights):
//   - Weighted with weight count != target count
//   - negative weights
//   - weight sum (or total quantity, for proportional) not positive
func Allocate(aggregate Cost, policy AllocationPolicy, targets []AllocationTarget) ([]Cost, error) {
	if len(targets) == 0 {
		return nil, &InvalidWeightsError{Reason: "no targets"}
	}
	if aggregate.IsNegative() {
		return nil, fmt.Errorf("negative aggregate %v: %w", aggregate.Value, ErrInvalidEvent)
	}

	weights, err := policyWeights(policy, targets)
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		if policy.Kind == AllocProportional {
			return nil, &InvalidWeightsError{Reason: "total output quantity is zero"}
		}
		return nil, &InvalidWeightsError{Reason: "weights sum to zero"}
	}

	shares := make([]Cost, len(targets))
	allocated := decimal.Zero
	for i, w := range weights {
		q, _ := aggregate.Value.Mul(w).QuoRem(sum, CostScale)
		shares[i] = Cost{Value: q}
		allocated = allocated.Add(q)
	}

	// Residual from truncation; assign to the first positively weighted
	// output so the total is conserved exactly.
	residual := aggregate.Value.Sub(allocated)
	if !residual.IsZero() {
		for i, w := range weights {
			if w.IsPositive() {
				shares[i].Value = shares[i].Value.Add(residual)
				break
			}
		}
	}

	return shares, nil
}

func policyWeights(policy AllocationPolicy, targets []AllocationTarget) ([]decimal.Decimal, error) {
	switch policy.Kind {
	case AllocEqual, "":
		weights := make([]decimal.Decimal, len(targets))
		one := decimal.NewFromInt(1)
		for i := range weights {
			weights[i] = one
		}
		return weights, nil

	case AllocProportional:
		weights := make([]decimal.Decimal, len(targets))
		for i, t := range targets {
			if t.Quantity.IsNegative() {
				return nil, &InvalidWeightsError{Reason: "negative output quantity"}
			}
			weights[i] = t.Quantity.Value
		}
		return weights, nil

	case AllocWeighted:
		if len(policy.Weights) != len(targets) {
			return nil, &InvalidWeightsError{Reason: fmt.Sprintf(
				"%d weights for %d outputs", len(policy.Weights), len(targets))}
		}
		for _, w := range policy.Weights {
			if w.IsNegative() {
				return nil, &InvalidWeightsError{Reason: "negative weight"}
			}
		}
		return policy.Weights, nil

	default:
		return nil, &InvalidWeightsError{Reason: fmt.Sprintf("unknown policy kind %q", policy.Kind)}
	}
}
