package core

import (
	"fmt"

	"github.com/signalsfoundry/handover-analytics/internal/config"
)

// Feature slots of one cell block.
const (
	slotDurationAvg = iota
	slotDurationMin
	slotDurationMax
	slotDistanceAvg
	slotDistanceMin
	slotDistanceMax
	slotRSRQAvg
	slotRSRPAvg
	slotThroughputAvg
	slotHandovers
	slotConnectedUsers

	// MinFeatureWidth is the number of slots a cell block must hold.
	MinFeatureWidth
)

// EpisodeDescriptors is the number of scalars appended after the cell blocks.
const EpisodeDescriptors = 4

// EpisodeInfo carries the episode descriptors appended to the state.
type EpisodeInfo struct {
	UECount   int
	DurationS int
	MaxSpeed  float64
	MinSpeed  float64
}

// StateBuilder turns per-cell aggregates into the fixed-length observation.
type StateBuilder struct {
	ENBCount        int
	FeatureWidth    int
	UEUpperCount    float64
	HandoverDivisor float64
	UserDivisor     float64
}

// NewStateBuilder reads the shape and scaling constants from cfg.
func NewStateBuilder(cfg config.Config) StateBuilder {
	return StateBuilder{
		ENBCount:        cfg.ENBCount,
		FeatureWidth:    cfg.FeatureWidth,
		UEUpperCount:    float64(cfg.UEUpperCount),
		HandoverDivisor: cfg.HandoverDivisor,
		UserDivisor:     cfg.UserDivisor,
	}
}

// Len is the length of every vector this builder produces.
func (b StateBuilder) Len() int {
	return b.ENBCount*b.FeatureWidth + EpisodeDescriptors
}

// Initial returns the observation of an environment that has not run yet:
// zero cell blocks followed by the episode descriptors.
func (b StateBuilder) Initial(info EpisodeInfo) []float64 {
	state := make([]float64, b.ENBCount*b.FeatureWidth, b.Len())
	return b.appendDescriptors(state, info)
}

// Build produces the observation for one episode. It resets acc's state
// counters and then records every cell's handovers and normalised maxima.
// Cells are laid out in ascending id order; a cell missing from aggs gets a
// zero block.
func (b StateBuilder) Build(aggs CellAggregates, info EpisodeInfo, acc *Accumulator) ([]float64, error) {
	if b.FeatureWidth < MinFeatureWidth {
		return nil, fmt.Errorf("feature width %d below minimum %d", b.FeatureWidth, MinFeatureWidth)
	}
	if acc != nil {
		acc.ResetState()
	}

	maxDurations := globalMax(aggs, func(c *CellAggregate) []float64 { return c.Durations })
	maxDistances := globalMax(aggs, func(c *CellAggregate) []float64 { return c.Distances })
	maxRSRQ := globalMax(aggs, func(c *CellAggregate) []float64 { return c.RSRQ })
	maxRSRP := globalMax(aggs, func(c *CellAggregate) []float64 { return c.RSRP })
	maxThroughput := globalMax(aggs, func(c *CellAggregate) []float64 { return c.Throughput })

	state := make([]float64, 0, b.Len())
	for cell := 1; cell <= b.ENBCount; cell++ {
		agg, ok := aggs[cell]
		if !ok {
			agg = &CellAggregate{Cell: cell}
		}
		block := make([]float64, b.FeatureWidth)

		durations := summarize(normalized(agg.Durations, maxDurations))
		block[slotDurationAvg] = durations.Avg
		block[slotDurationMin] = durations.Min
		block[slotDurationMax] = durations.Max

		distances := summarize(normalized(agg.Distances, maxDistances))
		block[slotDistanceAvg] = distances.Avg
		block[slotDistanceMin] = distances.Min
		block[slotDistanceMax] = distances.Max

		rsrq := summarize(normalized(agg.RSRQ, maxRSRQ))
		block[slotRSRQAvg] = rsrq.Avg
		block[slotRSRPAvg] = summarize(normalized(agg.RSRP, maxRSRP)).Avg

		throughput := summarize(normalized(agg.Throughput, maxThroughput))
		block[slotThroughputAvg] = throughput.Avg

		block[slotHandovers] = safeDiv(float64(agg.Handovers), b.HandoverDivisor)
		block[slotConnectedUsers] = safeDiv(float64(agg.ConnectedUsers), b.UserDivisor)

		if acc != nil {
			acc.RecordCell(agg.Handovers, rsrq.Max, throughput.Max)
		}
		state = append(state, block...)
	}
	return b.appendDescriptors(state, info), nil
}

func (b StateBuilder) appendDescriptors(state []float64, info EpisodeInfo) []float64 {
	return append(state,
		safeDiv(float64(info.UECount), b.UEUpperCount),
		info.MaxSpeed,
		info.MinSpeed,
		float64(info.DurationS),
	)
}

// globalMax is the largest value of one aggregate key across all cells; an
// empty key contributes 0.
func globalMax(aggs CellAggregates, key func(*CellAggregate) []float64) float64 {
	first := true
	var best float64
	for _, agg := range aggs {
		m := maxOrZero(key(agg))
		if first || m > best {
			best, first = m, false
		}
	}
	return best
}
