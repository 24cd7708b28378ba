package core

import (
	"sync"

	"github.com/signalsfoundry/handover-analytics/model"
)

// Accumulator holds the running telemetry of one run mode. State-vector
// counters are reset by every StateBuilder.Build; episode histories are reset
// by the caller at episode boundaries.
type Accumulator struct {
	mu   sync.Mutex
	mode model.Mode

	handovers      int
	cellRSRQ       []float64
	cellThroughput []float64

	throughputHistory []float64
	rsrqHistory       []float64
}

// NewAccumulator constructs an empty accumulator for mode.
func NewAccumulator(mode model.Mode) *Accumulator {
	return &Accumulator{mode: mode}
}

// Mode returns the run mode the accumulator belongs to.
func (a *Accumulator) Mode() model.Mode { return a.mode }

// ResetState clears the handover total and per-cell telemetry.
func (a *Accumulator) ResetState() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handovers = 0
	a.cellRSRQ = nil
	a.cellThroughput = nil
}

// RecordCell adds one cell's handovers and normalised RSRQ/throughput maxima.
func (a *Accumulator) RecordCell(handovers int, rsrqMax, throughputMax float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handovers += handovers
	a.cellRSRQ = append(a.cellRSRQ, rsrqMax)
	a.cellThroughput = append(a.cellThroughput, throughputMax)
}

// ResetEpisode clears the throughput and RSRQ histories.
func (a *Accumulator) ResetEpisode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.throughputHistory = nil
	a.rsrqHistory = nil
}

// RecordEpisode appends one episode's total throughput and RSRQ sum.
func (a *Accumulator) RecordEpisode(throughput, rsrqSum float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.throughputHistory = append(a.throughputHistory, throughput)
	a.rsrqHistory = append(a.rsrqHistory, rsrqSum)
}

// AccumulatorSnapshot is a copy of an Accumulator's counters.
type AccumulatorSnapshot struct {
	Mode              model.Mode
	Handovers         int
	CellRSRQ          []float64
	CellThroughput    []float64
	ThroughputHistory []float64
	RSRQHistory       []float64
}

// Snapshot copies the current counters.
func (a *Accumulator) Snapshot() AccumulatorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AccumulatorSnapshot{
		Mode:              a.mode,
		Handovers:         a.handovers,
		CellRSRQ:          append([]float64(nil), a.cellRSRQ...),
		CellThroughput:    append([]float64(nil), a.cellThroughput...),
		ThroughputHistory: append([]float64(nil), a.throughputHistory...),
		RSRQHistory:       append([]float64(nil), a.rsrqHistory...),
	}
}

// Accumulators holds one Accumulator per run mode.
type Accumulators struct {
	byMode map[model.Mode]*Accumulator
}

// NewAccumulators creates an accumulator for every mode in model.Modes.
func NewAccumulators() *Accumulators {
	accs := &Accumulators{byMode: make(map[model.Mode]*Accumulator, len(model.Modes))}
	for _, m := range model.Modes {
		accs.byMode[m] = NewAccumulator(m)
	}
	return accs
}

// For returns the accumulator of mode, creating it for modes outside
// model.Modes.
func (a *Accumulators) For(mode model.Mode) *Accumulator {
	acc, ok := a.byMode[mode]
	if !ok {
		acc = NewAccumulator(mode)
		a.byMode[mode] = acc
	}
	return acc
}
