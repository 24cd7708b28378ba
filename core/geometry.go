package core

import (
	"math"

	"github.com/signalsfoundry/handover-analytics/model"
)

// Distance returns the straight-line distance between two points in the
// simulator plane.
func Distance(a, b model.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
