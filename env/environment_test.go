package env

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/handover-analytics/core"
	"github.com/signalsfoundry/handover-analytics/internal/config"
	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/model"
)

const episodeLog = `0 ms: Cell state: Cell 1 at 0 0 direction 0
0 ms: Cell state: Cell 2 at 100 0 direction 0
0 ms: UE seen at cell: Cell 1 saw IMSI 1 (context: x)
0 ms: UE state: IMSI 1 at 3 4 with 1000 received bytes
100 ms: Measurement report: Cell 1 got measurements from IMSI 1 (ID 1, cell:RSRP/RSRQ 1:60/20 2:40/10)
35000 ms: UE seen at cell: Cell 2 saw IMSI 1 (context: x)
35000 ms: UE state: IMSI 1 at 90 0 with 4000 received bytes
`

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulatorFile.txt")
	require.NoError(t, os.WriteFile(path, []byte(episodeLog), 0o644))
	return path
}

func newEnv(t *testing.T, mode model.Mode, sim Simulator) (*Environment, *core.Accumulators) {
	t.Helper()
	proc, err := core.NewEpisodeProcessor(config.Defaults(), nil, nil, logging.Noop())
	require.NoError(t, err)
	accs := core.NewAccumulators()
	return New(mode, sim, proc, accs, logging.Noop()), accs
}

func TestResetReturnsInitialState(t *testing.T) {
	e, _ := newEnv(t, model.ModeEval1, NewReplaySimulator("unused"))
	state := e.Reset()

	require.Len(t, state, 59)
	for i := 0; i < 55; i++ {
		if state[i] != 0 {
			t.Fatalf("slot %d = %v, want 0", i, state[i])
		}
	}
	assert.InDeltaSlice(t, []float64{8.0 / 18, 20, 20, 70}, state[55:], 1e-12)
	assert.Equal(t, model.DefaultAction(), e.Action())
}

func TestStepRunsEpisode(t *testing.T) {
	sim := NewReplaySimulator(writeLog(t))
	e, accs := newEnv(t, model.ModeEval1, sim)
	accs.For(model.ModeEval1).RecordEpisode(1, 1)

	action := model.Action{NeighbourCellOffset: 3, ServingCellThreshold: 20}
	state, reward, err := e.Step(context.Background(), action)
	require.NoError(t, err)

	require.Len(t, state, 59)
	assert.Equal(t, 70.0, state[58])
	assert.Greater(t, reward.Value, 0.0)
	assert.Equal(t, action, e.Action())

	// history cleared before the step and holds only this episode
	snap := accs.For(model.ModeEval1).Snapshot()
	require.Len(t, snap.ThroughputHistory, 1)
	assert.InDelta(t, reward.Throughput, snap.ThroughputHistory[0], 1e-12)
	assert.Zero(t, accs.For(model.ModeTraining).Snapshot().Handovers)

	runs := sim.Runs()
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0], "--NeighbourCellOffset=3")
	assert.Contains(t, runs[0], "--ServingCellThreshold=20")
	assert.Contains(t, runs[0], "--RngRun=100")
}

func TestStepRejectsOutOfRangeAction(t *testing.T) {
	sim := NewReplaySimulator(writeLog(t))
	e, _ := newEnv(t, model.ModeTraining, sim)

	_, _, err := e.Step(context.Background(), model.Action{NeighbourCellOffset: 35, ServingCellThreshold: 1})
	if !errors.Is(err, ErrActionOutOfRange) {
		t.Fatalf("expected ErrActionOutOfRange, got %v", err)
	}
	if len(sim.Runs()) != 0 {
		t.Fatalf("simulator ran for a rejected action")
	}
}

func TestStepSimulatorFailure(t *testing.T) {
	e, _ := newEnv(t, model.ModeEval2, NewReplaySimulator(filepath.Join(t.TempDir(), "missing.txt")))

	_, _, err := e.Step(context.Background(), model.DefaultAction())
	if err == nil || !strings.Contains(err.Error(), "run simulator") {
		t.Fatalf("expected simulator error, got %v", err)
	}
}

func TestReplaySimulatorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewReplaySimulator(writeLog(t)).Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
