/*
conservation.go - The conservation law and its enforcement

PURPOSE:
  Cost is neither created nor destroyed inside the system; it only enters
  and leaves through declared boundary events. This file enforces that law
  at two levels:

    1. Per event: the sum of cost changes across everything the event
       touched must equal the event's declared External amount. Checked
       BEFORE the event commits; violations roll the whole event back.
    2. Ledger-wide: total cost on the ledger must equal the running sum
       of boundary flows. Exposed as a report for audits.

TOLERANCE:
  Default is EXACT (zero tolerance). The engine's arithmetic is exact by
  construction, so any drift is a defect. A tolerance can be configured
  for ledgers restored from systems with looser arithmetic, but new
  deployments should never need one.

SEE ALSO:
  - snapshot.go: The Delta being validated
  - machine.go: Rolls back on violation
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// CONSERVATION VALIDATOR
// =============================================================================

// ConservationValidator checks event deltas against the conservation law.
// The zero value is valid and enforces exact conservation.
type ConservationValidator struct {
	// Tolerance is the largest |drift| accepted. Zero means exact.
	Tolerance decimal.Decimal
}

// Check validates one event's delta. Returns *ConservationViolationError
// when the net change across touched entities differs from the declared
// external flow by more than the tolerance.
func (v *ConservationValidator) Check(d *Delta) error {
	net := d.NetChange()
	drift := net.Sub(d.External).Value.Abs()
	if drift.GreaterThan(v.Tolerance) {
		return &ConservationViolationError{
			EventID:  d.EventID,
			Kind:     d.Kind,
			Expected: d.External,
			Actual:   net,
		}
	}
	return nil
}

// =============================================================================
// LEDGER-WIDE REPORT
// =============================================================================

// Report compares total cost on the ledger against the accumulated
// boundary flows. Balanced ledgers have zero drift.
type Report struct {
	// TotalOnLedger is every cost basis plus every process pool.
	TotalOnLedger Cost

	// NetExternal is the running sum of boundary flows (in minus out).
	NetExternal Cost

	// Drift is TotalOnLedger - NetExternal. Zero when balanced.
	Drift Cost

	Balanced bool
}

// CheckLedger builds the ledger-wide conservation report. netExternal is
// the sum of External across every applied event, which the journal
// accumulates.
func (v *ConservationValidator) CheckLedger(l *Ledger, netExternal Cost) Report {
	total := l.TotalCost()
	drift := total.Sub(netExternal)
	return Report{
		TotalOnLedger: total,
		NetExternal:   netExternal,
		Drift:         drift,
		Balanced:      !drift.Value.Abs().GreaterThan(v.Tolerance),
	}
}
