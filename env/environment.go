package env

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/handover-analytics/core"
	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/model"
)

// ErrActionOutOfRange is returned by Step for actions outside [0, 34].
var ErrActionOutOfRange = model.ErrActionOutOfRange

// Environment is a single-step episodic environment: every Step runs one
// full simulation and ends the episode.
type Environment struct {
	Mode      model.Mode
	ENBCount  int
	Scenarios *Scenarios
	Simulator Simulator
	Processor *core.EpisodeProcessor
	Acc       *core.Accumulator
	Log       logging.Logger

	action model.Action
}

// New builds an environment for mode. accs supplies the mode's accumulator.
func New(mode model.Mode, sim Simulator, proc *core.EpisodeProcessor, accs *core.Accumulators, log logging.Logger) *Environment {
	if log == nil {
		log = logging.Noop()
	}
	return &Environment{
		Mode:      mode,
		ENBCount:  proc.State.ENBCount,
		Scenarios: NewScenarios(mode, "scenarios-"+string(mode)),
		Simulator: sim,
		Processor: proc,
		Acc:       accs.For(mode),
		Log:       log.With(logging.String("mode", string(mode))),
		action:    model.DefaultAction(),
	}
}

// Reset restores the default action and returns the initial observation:
// zero cell blocks followed by the current scenario's descriptors.
func (e *Environment) Reset() []float64 {
	e.action = model.DefaultAction()
	cfg := e.Scenarios.Current()
	return e.Processor.State.Initial(core.EpisodeInfo{
		UECount:   cfg.UECount,
		DurationS: cfg.DurationS,
		MaxSpeed:  cfg.MaxSpeed,
		MinSpeed:  cfg.MinSpeed,
	})
}

// Action returns the parameters of the last accepted step.
func (e *Environment) Action() model.Action { return e.action }

// Step runs one episode under action and returns its observation and reward.
// The mode accumulator's episode history is cleared first.
func (e *Environment) Step(ctx context.Context, action model.Action) ([]float64, core.Reward, error) {
	if err := action.Validate(); err != nil {
		return nil, core.Reward{}, err
	}
	e.action = action

	cfg := e.Scenarios.Next()
	e.Acc.ResetEpisode()

	args := SimulatorArgs(cfg, action, e.ENBCount)
	e.Log.Debug(ctx, "running simulator",
		logging.Int("episode", e.Scenarios.Episode()),
		logging.Any("args", args),
	)
	rc, err := e.Simulator.Run(ctx, args)
	if err != nil {
		return nil, core.Reward{}, fmt.Errorf("run simulator: %w", err)
	}
	defer rc.Close()

	res, err := e.Processor.Process(ctx, rc, cfg, e.Acc)
	if err != nil {
		return nil, core.Reward{}, err
	}
	return res.State, res.Reward, nil
}
