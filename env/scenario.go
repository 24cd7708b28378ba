// Package env drives one simulated episode per control step: it picks the
// scenario for the run mode, hands the action to the simulator and turns the
// resulting log into a state vector and reward.
package env

import (
	"strconv"

	"github.com/iti/rngstream"

	"github.com/signalsfoundry/handover-analytics/model"
)

// Training resampling periods, in episodes.
const (
	populationPeriod = 100
	mobilityPeriod   = 50
)

const defaultRho = 200

var (
	trainingDurations = []int{60, 70, 80, 90}
	trainingUECounts  = []int{7, 8, 9}
	trainingSpeeds    = []float64{20, 40, 70}
	trainingOrigins   = []float64{0, 100, 200, 300, 400, 500, 600}
)

// maxRngRun bounds the simulator run number drawn for training episodes.
const maxRngRun = 1000

// Preset returns the fixed scenario of an evaluation mode. ok is false for
// training, whose scenarios are sampled.
func Preset(mode model.Mode) (model.EpisodeConfig, bool) {
	switch mode {
	case model.ModeEval1:
		return model.EpisodeConfig{
			Mode:      model.ModeEval1,
			DurationS: 70,
			UECount:   8,
			MaxSpeed:  20,
			MinSpeed:  20,
			Origin:    model.Point{X: 200, Y: 300},
			Rho:       defaultRho,
			RngRun:    100,
		}, true
	case model.ModeEval2:
		return model.EpisodeConfig{
			Mode:      model.ModeEval2,
			DurationS: 80,
			UECount:   8,
			MaxSpeed:  70,
			MinSpeed:  70,
			Origin:    model.Point{X: 300, Y: 100},
			Rho:       defaultRho,
			RngRun:    350,
		}, true
	default:
		return model.EpisodeConfig{}, false
	}
}

// initialTraining is the training scenario before the first resample.
func initialTraining() model.EpisodeConfig {
	return model.EpisodeConfig{
		Mode:      model.ModeTraining,
		DurationS: 60,
		UECount:   8,
		MaxSpeed:  70,
		MinSpeed:  70,
		Origin:    model.Point{X: 0, Y: 300},
		Rho:       defaultRho,
	}
}

// Scenarios yields the episode configuration for successive steps of one
// mode. Evaluation modes always return their preset; training resamples the
// population every 100 episodes and the mobility every 50.
type Scenarios struct {
	mode    model.Mode
	episode int
	current model.EpisodeConfig
	rng     *rngstream.RngStream
}

// NewScenarios creates the scenario source of mode. name seeds the random
// stream used for training draws.
func NewScenarios(mode model.Mode, name string) *Scenarios {
	s := &Scenarios{mode: mode}
	if preset, ok := Preset(mode); ok {
		s.current = preset
		return s
	}
	s.current = initialTraining()
	s.current.Mode = mode
	s.rng = rngstream.New(name)
	return s
}

// Current returns the configuration of the most recent (or upcoming first)
// episode without advancing.
func (s *Scenarios) Current() model.EpisodeConfig { return s.current }

// Episode returns how many configurations Next has handed out.
func (s *Scenarios) Episode() int { return s.episode }

// Next returns the configuration for the next episode.
func (s *Scenarios) Next() model.EpisodeConfig {
	if s.rng == nil {
		s.episode++
		return s.current
	}

	cfg := s.current
	cfg.RngRun = s.intn(maxRngRun + 1)
	if s.episode%populationPeriod == 0 {
		cfg.DurationS = pick(s, trainingDurations)
		cfg.UECount = pick(s, trainingUECounts)
	}
	if s.episode%mobilityPeriod == 0 {
		speed := pick(s, trainingSpeeds)
		cfg.MaxSpeed, cfg.MinSpeed = speed, speed
		cfg.Origin = model.Point{X: pick(s, trainingOrigins), Y: pick(s, trainingOrigins)}
		cfg.Rho = defaultRho
	}
	s.current = cfg
	s.episode++
	return cfg
}

// intn draws uniformly from [0, n).
func (s *Scenarios) intn(n int) int {
	i := int(s.rng.RandU01() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

func pick[T any](s *Scenarios, options []T) T {
	return options[s.intn(len(options))]
}

// SimulatorArgs renders the command-line flags of one simulator run.
func SimulatorArgs(cfg model.EpisodeConfig, action model.Action, enbCount int) []string {
	return []string{
		"--NeighbourCellOffset=" + formatFloat(action.NeighbourCellOffset),
		"--ServingCellThreshold=" + formatFloat(action.ServingCellThreshold),
		"--duration=" + strconv.Itoa(cfg.DurationS),
		"--UE_Count=" + strconv.Itoa(cfg.UECount),
		"--ENB_Count=" + strconv.Itoa(enbCount),
		"--x_pos=" + formatFloat(cfg.Origin.X),
		"--rho=" + formatFloat(cfg.Rho),
		"--y_pos=" + formatFloat(cfg.Origin.Y),
		"--max_speed=" + formatFloat(cfg.MaxSpeed),
		"--min_speed=" + formatFloat(cfg.MinSpeed),
		"--RngRun=" + strconv.Itoa(cfg.RngRun),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
