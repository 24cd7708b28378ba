package core

import (
	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
)

// DefaultRewardScale divides total throughput into the reward value.
const DefaultRewardScale = 50000

// Reward is the training signal of one episode together with the figures it
// was derived from. Value is the authoritative signal; OptimizeRatio is
// reported for telemetry only.
type Reward struct {
	Value         float64 `json:"value"`
	Throughput    float64 `json:"throughput"`
	Handovers     int     `json:"handovers"`
	HandoverRate  float64 `json:"handover_rate"`
	OptimizeRatio float64 `json:"optimize_ratio"`
	RSRQSum       float64 `json:"rsrq_sum"`
	RSRQAvg       float64 `json:"rsrq_avg"`
}

// RewardCalculator derives the scalar reward from aggregated intervals.
type RewardCalculator struct {
	Scale float64
}

// NewRewardCalculator returns a calculator with scale, or DefaultRewardScale
// when scale is not positive.
func NewRewardCalculator(scale float64) RewardCalculator {
	if scale <= 0 {
		scale = DefaultRewardScale
	}
	return RewardCalculator{Scale: scale}
}

// Compute sums throughput and RSRQ over every interval of every cell known
// to store. Intervals must already carry their aggregates. A UE's first
// interval at a cell is not counted as a handover. The episode's throughput
// and RSRQ sum are appended to acc's history.
func (rc RewardCalculator) Compute(store *kb.KnowledgeBase, conn *Connectivity, durationS, ueCount int, acc *Accumulator) Reward {
	var (
		r     Reward
		count int
	)
	ticks := float64(durationS) * 10

	for _, cell := range store.Objects(model.EntityCell) {
		byUE, ok := conn.ByCell[cell]
		if !ok {
			continue
		}
		var cellSum float64
		for _, ue := range sortedKeys(byUE) {
			ids := byUE[ue]
			for _, iv := range conn.Intervals(ids) {
				cellSum += sum(iv.Aggregate.Throughput)
				r.RSRQSum += sum(iv.Aggregate.RSRQ)
			}
			count++
			r.Handovers += len(ids) - 1
		}
		r.Throughput += safeDiv(cellSum, ticks)
	}

	r.HandoverRate = safeDiv(float64(r.Handovers), float64(ueCount)*ticks)
	r.OptimizeRatio = safeDiv(r.Throughput, r.HandoverRate)
	r.RSRQAvg = safeDiv(r.RSRQSum, float64(count))
	r.Value = safeDiv(r.Throughput, rc.Scale)

	if acc != nil {
		acc.RecordEpisode(r.Throughput, r.RSRQSum)
	}
	return r
}
