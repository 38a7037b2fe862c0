/*
allocation_test.go - Deterministic cost allocation across outputs

The invariant under test everywhere: the shares sum to EXACTLY the
aggregate, with the truncation residual landing on the first output
that carries a positive weight.
*/
package engine_test

import (
	"errors"
	"testing"

	"github.com/meridian/cost-engine/engine"
	"github.com/shopspring/decimal"
)

func targets(quantities ...string) []engine.AllocationTarget {
	ts := make([]engine.AllocationTarget, len(quantities))
	for i, q := range quantities {
		ts[i] = engine.AllocationTarget{
			Resource: engine.ResourceID(string(rune('a' + i))),
			Quantity: qty(q, engine.UnitEach),
		}
	}
	return ts
}

func sumCosts(shares []engine.Cost) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Value)
	}
	return total
}

func TestAllocate_EqualSplitsEvenly(t *testing.T) {
	// GIVEN: 12 of cost across 4 outputs
	// WHEN: allocated equally
	// THEN: each receives exactly 3

	shares, err := engine.Allocate(cost("12"), engine.EqualPolicy(), targets("1", "1", "1", "1"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	for i, s := range shares {
		if !s.Value.Equal(dec("3")) {
			t.Errorf("share %d: expected 3, got %v", i, s.Value)
		}
	}
}

func TestAllocate_EqualResidualGoesToFirstOutput(t *testing.T) {
	// GIVEN: 10 of cost across 3 equal outputs
	// WHEN: the division does not terminate
	// THEN: shares truncate at scale 12 and the first output absorbs the
	//       residual, so the sum is exactly 10

	shares, err := engine.Allocate(cost("10"), engine.EqualPolicy(), targets("1", "1", "1"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if !shares[0].Value.Equal(dec("3.333333333334")) {
		t.Errorf("first share must carry the residual: expected 3.333333333334, got %v", shares[0].Value)
	}
	if !shares[1].Value.Equal(dec("3.333333333333")) {
		t.Errorf("second share: expected 3.333333333333, got %v", shares[1].Value)
	}
	if !shares[2].Value.Equal(dec("3.333333333333")) {
		t.Errorf("third share: expected 3.333333333333, got %v", shares[2].Value)
	}
	if !sumCosts(shares).Equal(dec("10")) {
		t.Errorf("shares must sum to exactly 10, got %v", sumCosts(shares))
	}
}

func TestAllocate_ProportionalFollowsQuantities(t *testing.T) {
	// GIVEN: 10 of cost across outputs of 3 and 7 units
	// THEN: shares are 3 and 7

	shares, err := engine.Allocate(cost("10"), engine.ProportionalPolicy(), targets("3", "7"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if !shares[0].Value.Equal(dec("3")) || !shares[1].Value.Equal(dec("7")) {
		t.Errorf("expected shares [3 7], got [%v %v]", shares[0].Value, shares[1].Value)
	}
}

func TestAllocate_ProportionalZeroTotalRejected(t *testing.T) {
	// All-zero output quantities leave nothing to weight by.

	_, err := engine.Allocate(cost("10"), engine.ProportionalPolicy(), targets("0", "0"))
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestAllocate_WeightedRespectsWeights(t *testing.T) {
	// GIVEN: 9 of cost, weights 1:2
	// THEN: shares are 3 and 6, index-aligned with the outputs

	shares, err := engine.Allocate(cost("9"), engine.WeightedPolicy(dec("1"), dec("2")), targets("5", "5"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if !shares[0].Value.Equal(dec("3")) || !shares[1].Value.Equal(dec("6")) {
		t.Errorf("expected shares [3 6], got [%v %v]", shares[0].Value, shares[1].Value)
	}
}

func TestAllocate_WeightedResidualSkipsZeroWeightOutputs(t *testing.T) {
	// GIVEN: weights 0:1:2 over 5 of cost
	// WHEN: truncation leaves a residual
	// THEN: the residual lands on the FIRST output with a positive weight,
	//       never on a zero-weighted output

	shares, err := engine.Allocate(cost("5"), engine.WeightedPolicy(dec("0"), dec("1"), dec("2")), targets("1", "1", "1"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	if !shares[0].IsZero() {
		t.Errorf("zero-weighted output must receive nothing, got %v", shares[0].Value)
	}
	if !shares[1].Value.Equal(dec("1.666666666667")) {
		t.Errorf("residual must land on the first positive weight: expected 1.666666666667, got %v", shares[1].Value)
	}
	if !shares[2].Value.Equal(dec("3.333333333333")) {
		t.Errorf("expected 3.333333333333, got %v", shares[2].Value)
	}
	if !sumCosts(shares).Equal(dec("5")) {
		t.Errorf("shares must sum to exactly 5, got %v", sumCosts(shares))
	}
}

func TestAllocate_WeightedCountMismatchRejected(t *testing.T) {
	_, err := engine.Allocate(cost("9"), engine.WeightedPolicy(dec("1")), targets("5", "5"))
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestAllocate_NegativeWeightRejected(t *testing.T) {
	_, err := engine.Allocate(cost("9"), engine.WeightedPolicy(dec("2"), dec("-1")), targets("5", "5"))
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestAllocate_ZeroSumWeightsRejected(t *testing.T) {
	_, err := engine.Allocate(cost("9"), engine.WeightedPolicy(dec("0"), dec("0")), targets("5", "5"))
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestAllocate_NoTargetsRejected(t *testing.T) {
	_, err := engine.Allocate(cost("9"), engine.EqualPolicy(), nil)
	if !errors.Is(err, engine.ErrInvalidWeights) {
		t.Errorf("expected ErrInvalidWeights, got %v", err)
	}
}

func TestAllocate_ZeroAggregateYieldsZeroShares(t *testing.T) {
	// Splitting a free resource allocates zero cost everywhere.

	shares, err := engine.Allocate(engine.ZeroCost(), engine.EqualPolicy(), targets("1", "1"))
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	for i, s := range shares {
		if !s.IsZero() {
			t.Errorf("share %d: expected zero, got %v", i, s.Value)
		}
	}
}

func TestAllocate_ExactSumAcrossAwkwardInputs(t *testing.T) {
	// Sweep aggregates and weight shapes that force truncation and verify
	// the conservation property holds for every combination.

	aggregates := []string{"1", "0.000000000001", "99.999999999999", "7", "10"}
	policies := []engine.AllocationPolicy{
		engine.EqualPolicy(),
		engine.WeightedPolicy(dec("1"), dec("3"), dec("3")),
		engine.WeightedPolicy(dec("0.1"), dec("0.2"), dec("0.7")),
		engine.ProportionalPolicy(),
	}

	for _, a := range aggregates {
		for _, p := range policies {
			shares, err := engine.Allocate(cost(a), p, targets("2", "3", "5"))
			if err != nil {
				t.Fatalf("allocate %s/%s failed: %v", a, p.Kind, err)
			}
			if !sumCosts(shares).Equal(dec(a)) {
				t.Errorf("policy %s aggregate %s: shares sum to %v", p.Kind, a, sumCosts(shares))
			}
		}
	}
}
