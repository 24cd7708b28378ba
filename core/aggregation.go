package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

var (
	// ErrMissingCellCoordinate means a distance was needed for a cell that
	// never reported its position.
	ErrMissingCellCoordinate = errors.New("cell has no recorded coordinate")
	// ErrCellOutOfRange means a UE associated with a cell id outside
	// [1, ENBCount], which the fixed-size state vector cannot represent.
	ErrCellOutOfRange = errors.New("cell id outside configured range")
)

// DistanceGapPolicy decides what distance to carry into the ticks of an
// interval that precede its first UE coordinate sample.
type DistanceGapPolicy string

const (
	// GapSeedLastKnown seeds the carried distance from the last UE
	// coordinate observed at or before the interval start.
	GapSeedLastKnown DistanceGapPolicy = "seed"
	// GapSkip records nothing for those ticks.
	GapSkip DistanceGapPolicy = "skip"
)

// ParseDistanceGapPolicy maps a config string onto a policy.
func ParseDistanceGapPolicy(s string) (DistanceGapPolicy, error) {
	switch DistanceGapPolicy(s) {
	case GapSeedLastKnown, "":
		return GapSeedLastKnown, nil
	case GapSkip:
		return GapSkip, nil
	default:
		return "", fmt.Errorf("unknown distance gap policy %q", s)
	}
}

// CellAggregate collects the samples of every UE ever served by one cell.
type CellAggregate struct {
	Cell int

	// Durations has one entry per UE: the summed length of its intervals.
	Durations  []float64
	Distances  []float64
	RSRQ       []float64
	RSRP       []float64
	Throughput []float64

	// Handovers counts connection segments, including each UE's first.
	Handovers      int
	ConnectedUsers int
}

// emptyCellAggregate is the record for a cell no UE was ever served by.
func emptyCellAggregate(cell int) *CellAggregate {
	return &CellAggregate{
		Cell:       cell,
		Durations:  []float64{0},
		Distances:  []float64{0},
		RSRQ:       []float64{0},
		RSRP:       []float64{0},
		Throughput: []float64{0},
	}
}

// CellAggregates is keyed by cell id.
type CellAggregates map[int]*CellAggregate

// Cells returns the cell ids in ascending order.
func (a CellAggregates) Cells() []int {
	return sortedKeys(a)
}

// Aggregator folds store signals over connectivity intervals into
// per-interval and per-cell aggregates.
type Aggregator struct {
	// ENBCount is the number of configured cells; ids run 1..ENBCount.
	ENBCount  int
	GapPolicy DistanceGapPolicy

	// Audit receives one record per interval with quality data. Optional.
	Audit AuditSink
	Log   logging.Logger
}

// NewAggregator constructs an Aggregator with the default gap policy.
func NewAggregator(enbCount int, audit AuditSink, log logging.Logger) *Aggregator {
	return &Aggregator{
		ENBCount:  enbCount,
		GapPolicy: GapSeedLastKnown,
		Audit:     audit,
		Log:       log,
	}
}

// Aggregate annotates every interval in conn with its IntervalAggregate and
// returns a CellAggregate for every cell in 1..ENBCount.
func (a *Aggregator) Aggregate(ctx context.Context, store *kb.KnowledgeBase, conn *Connectivity) (CellAggregates, error) {
	log := a.Log
	if log == nil {
		log = logging.Noop()
	}

	out := make(CellAggregates, a.ENBCount)
	for _, cell := range conn.Cells() {
		if cell < 1 || cell > a.ENBCount {
			return nil, fmt.Errorf("%w: cell %d, configured %d", ErrCellOutOfRange, cell, a.ENBCount)
		}
		agg, err := a.aggregateCell(ctx, store, conn, cell)
		if err != nil {
			return nil, err
		}
		out[cell] = agg
	}
	for cell := 1; cell <= a.ENBCount; cell++ {
		if _, ok := out[cell]; !ok {
			out[cell] = emptyCellAggregate(cell)
		}
	}

	if a.Audit != nil {
		if err := a.Audit.EndEpisode(ctx); err != nil {
			log.Warn(ctx, "audit sink end-of-episode failed", logging.Err(err))
		}
	}
	return out, nil
}

func (a *Aggregator) aggregateCell(ctx context.Context, store *kb.KnowledgeBase, conn *Connectivity, cell int) (*CellAggregate, error) {
	agg := &CellAggregate{Cell: cell}
	loc := cellLocator{store: store, cell: cell}

	for _, ue := range conn.UEsAt(cell) {
		meas, measured := store.Measurements(timectrl.Forever, ue, cell)
		coords, _ := store.FullCoords(model.EntityUE, ue)
		rx, _ := store.FullTimeseries(model.EntityUE, ue, model.SignalBytesRx)

		var served timectrl.Millis
		for _, iv := range conn.Intervals(conn.ByCell[cell][ue]) {
			agg.Handovers++
			served += iv.Duration()

			ia := IntervalAggregate{}
			if measured {
				for _, o := range meas.Between(iv.Start, iv.End) {
					ia.RSRQ = append(ia.RSRQ, float64(o.Value.RSRQ))
					ia.RSRP = append(ia.RSRP, float64(o.Value.RSRP))
				}
			} else {
				ia.RSRQ = []float64{0}
				ia.RSRP = []float64{0}
			}
			agg.RSRQ = append(agg.RSRQ, ia.RSRQ...)
			agg.RSRP = append(agg.RSRP, ia.RSRP...)

			carried, err := a.sampleTicks(iv, coords, rx, &loc, &ia)
			if err != nil {
				return nil, err
			}
			agg.Distances = append(agg.Distances, carried...)
			agg.Throughput = append(agg.Throughput, ia.Throughput...)

			iv.Aggregate = ia
			a.audit(ctx, cell, ue, ia)
		}
		agg.Durations = append(agg.Durations, float64(served))
	}
	agg.ConnectedUsers = len(conn.ByCell[cell])
	return agg, nil
}

// sampleTicks walks the 100 ms ticks of iv. Distances measured at a tick go
// into ia and the returned cell-wide slice; ticks without a coordinate sample
// repeat the previous distance in the cell-wide slice only.
func (a *Aggregator) sampleTicks(iv *Interval, coords kb.Series[model.Point], rx kb.Series[float64], loc *cellLocator, ia *IntervalAggregate) ([]float64, error) {
	coordAt := make(map[timectrl.Millis]model.Point)
	for _, o := range coords.Between(iv.Start, iv.End) {
		if _, seen := coordAt[o.Timestep]; !seen {
			coordAt[o.Timestep] = o.Value
		}
	}
	rxAt := make(map[timectrl.Millis]float64)
	for _, o := range rx.Between(iv.Start, iv.End) {
		tick := timectrl.RoundToTick(o.Timestep)
		if _, seen := rxAt[tick]; !seen {
			rxAt[tick] = o.Value
		}
	}

	var cellWide []float64
	var carry float64
	haveCarry, seeded := false, false

	for tick := range timectrl.Ticks(iv.Start, iv.End) {
		if p, ok := coordAt[tick]; ok {
			origin, err := loc.position()
			if err != nil {
				return nil, err
			}
			carry, haveCarry = Distance(p, origin), true
			ia.Distances = append(ia.Distances, carry)
			cellWide = append(cellWide, carry)
		} else {
			if !haveCarry && !seeded && a.GapPolicy != GapSkip {
				seeded = true
				if last, ok := lastAtOrBefore(coords, iv.Start); ok {
					origin, err := loc.position()
					if err != nil {
						return nil, err
					}
					carry, haveCarry = Distance(last, origin), true
				}
			}
			if haveCarry {
				cellWide = append(cellWide, carry)
			}
		}

		if v, ok := rxAt[tick]; ok {
			ia.Throughput = append(ia.Throughput, v)
		}
	}
	return cellWide, nil
}

func (a *Aggregator) audit(ctx context.Context, cell, ue int, ia IntervalAggregate) {
	if a.Audit == nil {
		return
	}
	if len(ia.Throughput) == 0 || len(ia.RSRQ) == 0 || len(ia.RSRP) == 0 {
		return
	}
	rec := AuditRecord{
		Cell:          cell,
		UE:            ue,
		AvgThroughput: mean(ia.Throughput),
		AvgRSRQ:       mean(ia.RSRQ),
		AvgRSRP:       mean(ia.RSRP),
	}
	if err := a.Audit.Record(ctx, rec); err != nil && a.Log != nil {
		a.Log.Warn(ctx, "audit record failed", logging.Int("cell", cell), logging.Int("ue", ue), logging.Err(err))
	}
}

// cellLocator resolves a cell's fixed position (its first coords sample)
// on first use.
type cellLocator struct {
	store *kb.KnowledgeBase
	cell  int

	resolved bool
	pos      model.Point
}

func (l *cellLocator) position() (model.Point, error) {
	if l.resolved {
		return l.pos, nil
	}
	coords, ok := l.store.FullCoords(model.EntityCell, l.cell)
	if !ok {
		return model.Point{}, fmt.Errorf("%w: cell %d", ErrMissingCellCoordinate, l.cell)
	}
	l.pos, _ = coords.First()
	l.resolved = true
	return l.pos, nil
}

// lastAtOrBefore returns the coordinate with the greatest timestep <= t; on
// equal timesteps the later arrival wins.
func lastAtOrBefore(coords kb.Series[model.Point], t timectrl.Millis) (model.Point, bool) {
	var best model.Point
	bestTs := timectrl.Millis(0)
	found := false
	for _, o := range coords {
		if o.Timestep > t {
			continue
		}
		if !found || o.Timestep >= bestTs {
			best, bestTs, found = o.Value, o.Timestep, true
		}
	}
	return best, found
}
