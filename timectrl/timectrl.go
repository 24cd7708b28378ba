package timectrl

import (
	"iter"
	"math"
	"sync"
	"time"
)

// Millis is a simulation timestamp or span in milliseconds, as printed by the
// simulator at the start of every log line.
type Millis int64

// Tick is the sampling period of periodic UE state reports.
const Tick Millis = 100

// Forever is a query bound later than any simulation timestamp.
const Forever Millis = math.MaxInt64

// Duration converts m into a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// FromSeconds converts whole seconds of simulated time into Millis.
func FromSeconds(s int) Millis {
	return Millis(s) * 1000
}

// RoundToTick rounds ms to the nearest multiple of Tick. Ties go to the even
// multiple, so 150 rounds to 200 and 250 rounds to 200.
func RoundToTick(ms Millis) Millis {
	q := ms / Tick
	r := ms % Tick
	if r < 0 {
		// floor division for negative timestamps
		q--
		r += Tick
	}
	switch {
	case 2*r > Tick:
		q++
	case 2*r == Tick && q%2 != 0:
		q++
	}
	return q * Tick
}

// Ticks yields start, start+Tick, ... up to and including end.
func Ticks(start, end Millis) iter.Seq[Millis] {
	return func(yield func(Millis) bool) {
		for t := start; t <= end; t += Tick {
			if !yield(t) {
				return
			}
		}
	}
}

// Clock is the wall-clock source used to time pipeline stages. Tests inject a
// StepClock so durations are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// StepClock advances by Step on every call to Now.
type StepClock struct {
	mu      sync.Mutex
	current time.Time
	Step    time.Duration
}

// NewStepClock constructs a StepClock starting at start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{current: start, Step: step}
}

// Now returns the current time and then advances it by Step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.Step)
	return now
}
