package env

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Simulator runs one episode with the given command-line flags and returns
// its event log. Callers close the reader.
type Simulator interface {
	Run(ctx context.Context, args []string) (io.ReadCloser, error)
}

// ReplaySimulator serves a recorded event log instead of launching the
// simulator. Every run returns the same file; the flags of each run are kept
// for inspection.
type ReplaySimulator struct {
	Path string

	mu   sync.Mutex
	runs [][]string
}

// NewReplaySimulator replays the log at path.
func NewReplaySimulator(path string) *ReplaySimulator {
	return &ReplaySimulator{Path: path}
}

// Run implements Simulator.
func (s *ReplaySimulator) Run(ctx context.Context, args []string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.runs = append(s.runs, append([]string(nil), args...))
	s.mu.Unlock()

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("replay log %q: %w", s.Path, err)
	}
	return f, nil
}

// Runs returns the flags of every run so far.
func (s *ReplaySimulator) Runs() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.runs))
	copy(out, s.runs)
	return out
}
