/*
Package factory provides JSON to Go process conversion.

PURPOSE:
  Converts JSON process definitions into engine.Process values. This
  enables process configuration without code changes - operators can
  define processes and their allocation policies in JSON, and the
  factory creates the proper Go structs.

JSON SCHEMA:
  {
    "id": "grading",
    "name": "Quality grading",
    "allocation": {
      "policy": "weighted",
      "weights": ["1", "3"]
    }
  }

  Policies: "equal" (default), "proportional_to_quantity", "weighted".
  Weights are strings so exact decimals survive the trip; "0.1" means
  exactly one tenth, not the nearest float.

USAGE:
  f := factory.NewProcessFactory()
  proc, err := f.ParseProcess(jsonString)
  if err != nil { ... }
  err = eng.RegisterProcess(proc)

SEE ALSO:
  - engine/types.go: AllocationPolicy and its shape rules
  - api/handlers.go: The process-creation endpoint parses through here
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/meridian/cost-engine/engine"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProcessJSON is the JSON representation of a process.
type ProcessJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Note       string          `json:"note,omitempty"`
	Allocation *AllocationJSON `json:"allocation,omitempty"`
}

// AllocationJSON represents an allocation policy.
type AllocationJSON struct {
	Policy  string   `json:"policy"`
	Weights []string `json:"weights,omitempty"`
}

// =============================================================================
// PROCESS FACTORY
// =============================================================================

// ProcessFactory converts JSON processes to Go structs.
type ProcessFactory struct{}

// NewProcessFactory creates a new process factory.
func NewProcessFactory() *ProcessFactory {
	return &ProcessFactory{}
}

// ParseProcess parses a JSON string into an engine.Process.
func (f *ProcessFactory) ParseProcess(jsonStr string) (engine.Process, error) {
	var pj ProcessJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return engine.Process{}, fmt.Errorf("failed to parse process JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProcessJSON to an engine.Process.
func (f *ProcessFactory) FromJSON(pj ProcessJSON) (engine.Process, error) {
	if pj.ID == "" {
		return engine.Process{}, fmt.Errorf("process id is required: %w", engine.ErrInvalidEvent)
	}

	policy, err := parseAllocation(pj.Allocation)
	if err != nil {
		return engine.Process{}, err
	}

	return engine.Process{
		ID:     engine.ProcessID(pj.ID),
		Name:   pj.Name,
		Policy: policy,
	}, nil
}

// ToJSON converts a Process back to its JSON representation.
func (f *ProcessFactory) ToJSON(p engine.Process) ProcessJSON {
	pj := ProcessJSON{
		ID:   string(p.ID),
		Name: p.Name,
	}

	switch p.Policy.Kind {
	case engine.AllocProportional:
		pj.Allocation = &AllocationJSON{Policy: string(engine.AllocProportional)}
	case engine.AllocWeighted:
		aj := &AllocationJSON{Policy: string(engine.AllocWeighted)}
		for _, w := range p.Policy.Weights {
			aj.Weights = append(aj.Weights, w.String())
		}
		pj.Allocation = aj
	default:
		pj.Allocation = &AllocationJSON{Policy: string(engine.AllocEqual)}
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAllocation(aj *AllocationJSON) (engine.AllocationPolicy, error) {
	if aj == nil {
		return engine.EqualPolicy(), nil
	}

	switch aj.Policy {
	case "", string(engine.AllocEqual):
		if len(aj.Weights) > 0 {
			return engine.AllocationPolicy{}, fmt.Errorf("equal allocation takes no weights: %w", engine.ErrInvalidWeights)
		}
		return engine.EqualPolicy(), nil

	case string(engine.AllocProportional):
		if len(aj.Weights) > 0 {
			return engine.AllocationPolicy{}, fmt.Errorf("proportional allocation takes no weights: %w", engine.ErrInvalidWeights)
		}
		return engine.ProportionalPolicy(), nil

	case string(engine.AllocWeighted):
		if len(aj.Weights) == 0 {
			return engine.AllocationPolicy{}, fmt.Errorf("weighted allocation needs weights: %w", engine.ErrInvalidWeights)
		}
		weights, err := parseWeights(aj.Weights)
		if err != nil {
			return engine.AllocationPolicy{}, err
		}
		return engine.WeightedPolicy(weights...), nil
	}

	return engine.AllocationPolicy{}, fmt.Errorf("unknown allocation policy %q: %w", aj.Policy, engine.ErrInvalidWeights)
}

func parseWeights(raw []string) ([]decimal.Decimal, error) {
	weights := make([]decimal.Decimal, len(raw))
	for i, s := range raw {
		w, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("weight %d (%q): %w", i, s, engine.ErrInvalidWeights)
		}
		if w.IsNegative() {
			return nil, fmt.Errorf("weight %d (%q) is negative: %w", i, s, engine.ErrInvalidWeights)
		}
		weights[i] = w
	}
	return weights, nil
}
