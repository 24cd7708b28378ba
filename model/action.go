package model

import (
	"errors"
	"fmt"
)

// ErrActionOutOfRange means a handover parameter fell outside
// [ActionMin, ActionMax].
var ErrActionOutOfRange = errors.New("action out of range")

// Bounds of both handover parameters, in dB.
const (
	ActionMin = 0
	ActionMax = 34
)

// Action is the pair of handover parameters the control loop hands back for
// the next simulator run.
type Action struct {
	NeighbourCellOffset  float64 `json:"neighbour_cell_offset"`
	ServingCellThreshold float64 `json:"serving_cell_threshold"`
}

// Default handover parameters used before the first action arrives.
const (
	DefaultNeighbourCellOffset  = 5
	DefaultServingCellThreshold = 30
)

// DefaultAction returns the parameters a fresh environment starts with.
func DefaultAction() Action {
	return Action{
		NeighbourCellOffset:  DefaultNeighbourCellOffset,
		ServingCellThreshold: DefaultServingCellThreshold,
	}
}

// Validate rejects parameters outside the simulator's accepted range.
func (a Action) Validate() error {
	if !inRange(a.NeighbourCellOffset) {
		return fmt.Errorf("%w: neighbour cell offset %v", ErrActionOutOfRange, a.NeighbourCellOffset)
	}
	if !inRange(a.ServingCellThreshold) {
		return fmt.Errorf("%w: serving cell threshold %v", ErrActionOutOfRange, a.ServingCellThreshold)
	}
	return nil
}

// Clamp pulls both parameters into range. NaN becomes ActionMin.
func (a Action) Clamp() Action {
	return Action{
		NeighbourCellOffset:  clamp(a.NeighbourCellOffset),
		ServingCellThreshold: clamp(a.ServingCellThreshold),
	}
}

func inRange(v float64) bool {
	return v >= ActionMin && v <= ActionMax
}

func clamp(v float64) float64 {
	switch {
	case v > ActionMax:
		return ActionMax
	case v >= ActionMin:
		return v
	default:
		return ActionMin
	}
}
