package kb

import "github.com/signalsfoundry/handover-analytics/timectrl"

// Observation is one (timestep, value) sample of a time series.
type Observation[T any] struct {
	Timestep timectrl.Millis
	Value    T
}

// Series is an arrival-ordered list of observations. Nothing in this package
// sorts a series; callers that need timestep order must sort a copy.
type Series[T any] []Observation[T]

// Len returns the number of observations.
func (s Series[T]) Len() int { return len(s) }

// Until returns the observations with Timestep <= until, in arrival order.
func (s Series[T]) Until(until timectrl.Millis) Series[T] {
	out := make(Series[T], 0, len(s))
	for _, o := range s {
		if o.Timestep <= until {
			out = append(out, o)
		}
	}
	return out
}

// Between returns the observations with start <= Timestep <= end.
func (s Series[T]) Between(start, end timectrl.Millis) Series[T] {
	out := make(Series[T], 0, len(s))
	for _, o := range s {
		if o.Timestep >= start && o.Timestep <= end {
			out = append(out, o)
		}
	}
	return out
}

// Latest returns the most recently appended value.
func (s Series[T]) Latest() (T, bool) {
	var zero T
	if len(s) == 0 {
		return zero, false
	}
	return s[len(s)-1].Value, true
}

// First returns the earliest appended value.
func (s Series[T]) First() (T, bool) {
	var zero T
	if len(s) == 0 {
		return zero, false
	}
	return s[0].Value, true
}

// LastN returns the values of the last n observations (fewer if the series
// is shorter).
func (s Series[T]) LastN(n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > len(s) {
		n = len(s)
	}
	return s[len(s)-n:].Values()
}

// Values strips the timesteps.
func (s Series[T]) Values() []T {
	out := make([]T, len(s))
	for i, o := range s {
		out[i] = o.Value
	}
	return out
}

// Timesteps strips the values.
func (s Series[T]) Timesteps() []timectrl.Millis {
	out := make([]timectrl.Millis, len(s))
	for i, o := range s {
		out[i] = o.Timestep
	}
	return out
}

// clone returns a copy that does not share backing storage with s, so callers
// can never reorder or overwrite stored observations.
func (s Series[T]) clone() Series[T] {
	if s == nil {
		return nil
	}
	out := make(Series[T], len(s))
	copy(out, s)
	return out
}
