package core

import (
	"math"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

// IntervalID is a handle into a Connectivity arena.
type IntervalID int

// Interval is one serving period of a UE at a cell. Start and End are
// inclusive millisecond bounds.
type Interval struct {
	UE    int
	Cell  int
	Start timectrl.Millis
	End   timectrl.Millis

	// Aggregate is filled in by the Aggregator.
	Aggregate IntervalAggregate
}

// Duration returns End - Start.
func (iv *Interval) Duration() timectrl.Millis {
	return iv.End - iv.Start
}

// IntervalAggregate holds the samples measured while the interval was open.
type IntervalAggregate struct {
	Distances  []float64
	RSRQ       []float64
	RSRP       []float64
	Throughput []float64
}

// Connectivity holds every reconstructed interval of an episode once, in an
// arena, with two indexes of handles into it:
//
//	ByUE:   ue   -> cell -> intervals
//	ByCell: cell -> ue   -> intervals
//
// Both indexes resolve to the same arena slot, so an aggregate written via one
// is visible through the other.
type Connectivity struct {
	intervals []Interval

	ByUE   map[int]map[int][]IntervalID
	ByCell map[int]map[int][]IntervalID

	// EpisodeEnd is the last millisecond of the episode (duration - 1).
	EpisodeEnd timectrl.Millis
}

func newConnectivity(episodeEnd timectrl.Millis) *Connectivity {
	return &Connectivity{
		ByUE:       make(map[int]map[int][]IntervalID),
		ByCell:     make(map[int]map[int][]IntervalID),
		EpisodeEnd: episodeEnd,
	}
}

// BuildConnectivity reconstructs serving-cell intervals from the
// cell_associated observations in store. Each association opens an interval
// at its timestamp rounded to the 100 ms tick and running to the end of the
// episode; the next association of the same UE closes the previous interval
// at its own rounded timestamp.
func BuildConnectivity(store *kb.KnowledgeBase, duration timectrl.Millis) *Connectivity {
	conn := newConnectivity(duration - 1)

	for _, ue := range store.Objects(model.EntityUE) {
		assoc, ok := store.FullTimeseries(model.EntityUE, ue, model.SignalCellAssociated)
		if !ok {
			continue
		}
		prev := IntervalID(-1)
		for _, obs := range assoc {
			cell := int(math.Round(obs.Value))
			start := timectrl.RoundToTick(obs.Timestep)
			id := conn.add(ue, cell, start, conn.EpisodeEnd)
			if prev >= 0 {
				conn.intervals[prev].End = start
			}
			prev = id
		}
	}
	return conn
}

func (c *Connectivity) add(ue, cell int, start, end timectrl.Millis) IntervalID {
	id := IntervalID(len(c.intervals))
	c.intervals = append(c.intervals, Interval{UE: ue, Cell: cell, Start: start, End: end})

	if c.ByUE[ue] == nil {
		c.ByUE[ue] = make(map[int][]IntervalID)
	}
	c.ByUE[ue][cell] = append(c.ByUE[ue][cell], id)

	if c.ByCell[cell] == nil {
		c.ByCell[cell] = make(map[int][]IntervalID)
	}
	c.ByCell[cell][ue] = append(c.ByCell[cell][ue], id)
	return id
}

// Interval resolves a handle. It returns nil for an unknown handle.
func (c *Connectivity) Interval(id IntervalID) *Interval {
	if id < 0 || int(id) >= len(c.intervals) {
		return nil
	}
	return &c.intervals[id]
}

// Len returns the number of intervals in the arena.
func (c *Connectivity) Len() int { return len(c.intervals) }

// Intervals resolves a list of handles.
func (c *Connectivity) Intervals(ids []IntervalID) []*Interval {
	out := make([]*Interval, 0, len(ids))
	for _, id := range ids {
		if iv := c.Interval(id); iv != nil {
			out = append(out, iv)
		}
	}
	return out
}

// UEIntervals returns every interval of a UE in association order.
func (c *Connectivity) UEIntervals(ue int) []*Interval {
	var ids []IntervalID
	for _, byCell := range c.ByUE[ue] {
		ids = append(ids, byCell...)
	}
	// handles are allocated in association order
	slices.Sort(ids)
	return c.Intervals(ids)
}

// Cells returns the cells with at least one interval, ascending.
func (c *Connectivity) Cells() []int {
	return sortedKeys(c.ByCell)
}

// UEs returns the UEs with at least one interval, ascending.
func (c *Connectivity) UEs() []int {
	return sortedKeys(c.ByUE)
}

// UEsAt returns the UEs ever served by cell, ascending.
func (c *Connectivity) UEsAt(cell int) []int {
	return sortedKeys(c.ByCell[cell])
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
