/*
auditor.go - Background conservation auditor

PURPOSE:
  Periodically rechecks the whole ledger against the journal's
  accumulated boundary flows. The per-event conservation gate already
  blocks drift at the source; the auditor is the independent watchdog
  for corruption arriving any other way (bad restore, hand-edited rows).

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Reads engine and journal through the Handler, so scenario loads
    and resets are picked up on the next sweep
  - An unbalanced sweep logs loudly but never mutates state

CONFIGURATION:
  - SweepInterval: How often to sweep (default: 5 minutes)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewAuditor(handler)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - engine/conservation.go: The check behind each sweep
  - handlers.go: Conservation endpoint (on-demand report)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/meridian/cost-engine/engine"
)

// Auditor re-verifies ledger-wide conservation on a timer.
type Auditor struct {
	Handler       *Handler
	SweepInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAuditor creates a new auditor around a handler.
func NewAuditor(handler *Handler) *Auditor {
	return &Auditor{
		Handler:       handler,
		SweepInterval: 5 * time.Minute,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the auditor.
func (a *Auditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		log.Println("[Auditor] Disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.SweepInterval)
	a.wg.Add(1)

	go a.run()

	log.Printf("[Auditor] Started with sweep interval: %v", a.SweepInterval)
}

// Stop stops the auditor.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		log.Println("[Auditor] Stopped")
	}
}

func (a *Auditor) run() {
	defer a.wg.Done()

	// Sweep immediately on start
	a.sweepAndLog()

	for {
		select {
		case <-a.ticker.C:
			a.sweepAndLog()
		case <-a.stop:
			return
		}
	}
}

func (a *Auditor) sweepAndLog() {
	report, err := a.Sweep(context.Background())
	if err != nil {
		log.Printf("[Auditor] Sweep failed: %v", err)
		return
	}

	if !report.Balanced {
		log.Printf("[Auditor] LEDGER OUT OF BALANCE: total=%s external=%s drift=%s",
			report.TotalOnLedger.String(), report.NetExternal.String(), report.Drift.String())
		return
	}
	log.Printf("[Auditor] Ledger balanced: total=%s external=%s",
		report.TotalOnLedger.String(), report.NetExternal.String())
}

// Sweep runs one conservation check: the journal's net boundary flow
// against everything currently on the ledger.
func (a *Auditor) Sweep(ctx context.Context) (engine.Report, error) {
	net, err := a.Handler.Journal.NetExternal(ctx)
	if err != nil {
		return engine.Report{}, err
	}
	return a.Handler.Engine.ConservationReport(net), nil
}
