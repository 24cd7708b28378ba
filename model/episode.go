package model

import "fmt"

// Mode selects which run family an episode belongs to. Each mode keeps its
// own telemetry accumulator.
type Mode string

const (
	ModeTraining Mode = "training"
	ModeEval1    Mode = "eval1"
	ModeEval2    Mode = "eval2"
)

// Modes lists every run mode in a stable order.
var Modes = []Mode{ModeTraining, ModeEval1, ModeEval2}

// ParseMode maps a flag/config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTraining, ModeEval1, ModeEval2:
		return Mode(s), nil
	case "":
		return ModeTraining, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// EpisodeConfig describes one simulated run as supplied by the caller.
type EpisodeConfig struct {
	Mode Mode

	// DurationS is the simulated run length in seconds.
	DurationS int
	UECount   int
	MaxSpeed  float64
	MinSpeed  float64

	// Origin and Rho describe where UEs start and how far they spread.
	Origin Point
	Rho    float64

	// RngRun is the simulator's random run number.
	RngRun int
}

// DurationMs returns the episode length in milliseconds.
func (c EpisodeConfig) DurationMs() int64 {
	return int64(c.DurationS) * 1000
}

// Validate checks the fields the analytics pipeline depends on.
func (c EpisodeConfig) Validate() error {
	if c.DurationS <= 0 {
		return fmt.Errorf("episode duration must be positive, got %d", c.DurationS)
	}
	if c.UECount <= 0 {
		return fmt.Errorf("UE count must be positive, got %d", c.UECount)
	}
	if c.MinSpeed > c.MaxSpeed {
		return fmt.Errorf("min speed %v exceeds max speed %v", c.MinSpeed, c.MaxSpeed)
	}
	return nil
}
