package kb

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

// ErrUnknownEntityType is returned when an observation names an entity type
// other than cell or ue.
var ErrUnknownEntityType = errors.New("unknown entity type")

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventObservationAdded EventType = iota
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Entity   model.EntityType
	ID       int
	Signal   model.Signal
	Timestep timectrl.Millis
}

type fieldKind int

const (
	fieldScalar fieldKind = iota
	fieldCoords
	fieldNeighbour
)

// Field is one signal value handed to Add.
type Field struct {
	kind   fieldKind
	signal model.Signal
	scalar float64
	point  model.Point
	cell   int
	meas   model.Measurement
}

// Coords builds a coords field.
func Coords(x, y float64) Field {
	return Field{kind: fieldCoords, signal: model.SignalCoords, point: model.Point{X: x, Y: y}}
}

// Scalar builds a numeric field for one of the fixed scalar signals.
func Scalar(signal model.Signal, v float64) Field {
	return Field{kind: fieldScalar, signal: signal, scalar: v}
}

// Neighbour builds a measurement field for one neighbour cell.
func Neighbour(cell, rsrp, rsrq int) Field {
	return Field{
		kind:   fieldNeighbour,
		signal: model.SignalMeasurement,
		cell:   cell,
		meas:   model.Measurement{RSRP: rsrp, RSRQ: rsrq},
	}
}

type entity struct {
	coords     Series[model.Point]
	scalars    map[model.Signal]Series[float64]
	neighbours map[int]Series[model.Measurement]
}

func newEntity() *entity {
	return &entity{
		scalars:    make(map[model.Signal]Series[float64]),
		neighbours: make(map[int]Series[model.Measurement]),
	}
}

// KnowledgeBase is the per-episode time-series store: entity type -> id ->
// signal -> observations. Series are append-only; nothing is deleted until
// Clear.
type KnowledgeBase struct {
	mu sync.RWMutex

	entities map[model.EntityType]map[int]*entity

	subs []func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	kb := &KnowledgeBase{}
	kb.Clear()
	return kb
}

// Clear drops every series. Subscribers are kept.
func (kb *KnowledgeBase) Clear() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.entities = map[model.EntityType]map[int]*entity{
		model.EntityCell: {},
		model.EntityUE:   {},
	}
}

// Add appends one observation per field at timestep ts, creating the entity
// and its series on first use.
func (kb *KnowledgeBase) Add(ts timectrl.Millis, et model.EntityType, id int, fields ...Field) error {
	if !et.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, et)
	}

	kb.mu.Lock()
	e, ok := kb.entities[et][id]
	if !ok {
		e = newEntity()
		kb.entities[et][id] = e
	}
	events := make([]Event, 0, len(fields))
	for _, f := range fields {
		switch f.kind {
		case fieldCoords:
			e.coords = append(e.coords, Observation[model.Point]{Timestep: ts, Value: f.point})
		case fieldNeighbour:
			e.neighbours[f.cell] = append(e.neighbours[f.cell], Observation[model.Measurement]{Timestep: ts, Value: f.meas})
		default:
			e.scalars[f.signal] = append(e.scalars[f.signal], Observation[float64]{Timestep: ts, Value: f.scalar})
		}
		events = append(events, Event{Type: EventObservationAdded, Entity: et, ID: id, Signal: f.signal, Timestep: ts})
	}
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
	return nil
}

func (kb *KnowledgeBase) lookup(et model.EntityType, id int) *entity {
	byID, ok := kb.entities[et]
	if !ok {
		return nil
	}
	return byID[id]
}

// Objects returns the ids recorded for an entity type in ascending order.
func (kb *KnowledgeBase) Objects(et model.EntityType) []int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	ids := make([]int, 0, len(kb.entities[et]))
	for id := range kb.entities[et] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HasSignal reports whether the (entity, id, signal) triple was ever populated.
func (kb *KnowledgeBase) HasSignal(et model.EntityType, id int, signal model.Signal) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(et, id)
	if e == nil {
		return false
	}
	switch signal {
	case model.SignalCoords:
		return len(e.coords) > 0
	case model.SignalMeasurement:
		return len(e.neighbours) > 0
	default:
		_, ok := e.scalars[signal]
		return ok
	}
}

// FullTimeseries returns a copy of a scalar series. ok is false when the
// triple was never populated.
func (kb *KnowledgeBase) FullTimeseries(et model.EntityType, id int, signal model.Signal) (Series[float64], bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(et, id)
	if e == nil {
		return nil, false
	}
	s, ok := e.scalars[signal]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Timeseries returns the scalar observations with Timestep <= until.
func (kb *KnowledgeBase) Timeseries(until timectrl.Millis, et model.EntityType, id int, signal model.Signal) (Series[float64], bool) {
	s, ok := kb.FullTimeseries(et, id, signal)
	if !ok {
		return nil, false
	}
	return s.Until(until), true
}

// Value returns the latest scalar value observed at or before until.
func (kb *KnowledgeBase) Value(until timectrl.Millis, et model.EntityType, id int, signal model.Signal) (float64, bool) {
	s, ok := kb.Timeseries(until, et, id, signal)
	if !ok {
		return 0, false
	}
	return s.Latest()
}

// LatestValue returns the most recently appended scalar value.
func (kb *KnowledgeBase) LatestValue(et model.EntityType, id int, signal model.Signal) (float64, bool) {
	s, ok := kb.FullTimeseries(et, id, signal)
	if !ok {
		return 0, false
	}
	return s.Latest()
}

// LastNValues returns up to n of the most recent scalar values.
func (kb *KnowledgeBase) LastNValues(et model.EntityType, id int, signal model.Signal, n int) ([]float64, bool) {
	s, ok := kb.FullTimeseries(et, id, signal)
	if !ok {
		return nil, false
	}
	return s.LastN(n), true
}

// FullCoords returns a copy of the coords series of an entity.
func (kb *KnowledgeBase) FullCoords(et model.EntityType, id int) (Series[model.Point], bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(et, id)
	if e == nil || len(e.coords) == 0 {
		return nil, false
	}
	return e.coords.clone(), true
}

// CoordsTimeseries returns coords observations with Timestep <= until.
func (kb *KnowledgeBase) CoordsTimeseries(until timectrl.Millis, et model.EntityType, id int) (Series[model.Point], bool) {
	s, ok := kb.FullCoords(et, id)
	if !ok {
		return nil, false
	}
	return s.Until(until), true
}

// NeighbourCells returns, in ascending order, the cells an entity reported
// measurements for.
func (kb *KnowledgeBase) NeighbourCells(et model.EntityType, id int) []int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(et, id)
	if e == nil {
		return nil
	}
	cells := make([]int, 0, len(e.neighbours))
	for c := range e.neighbours {
		cells = append(cells, c)
	}
	slices.Sort(cells)
	return cells
}

// Measurements returns the RSRP/RSRQ series a UE reported for one cell,
// restricted to Timestep <= until.
func (kb *KnowledgeBase) Measurements(until timectrl.Millis, ue, cell int) (Series[model.Measurement], bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(model.EntityUE, ue)
	if e == nil {
		return nil, false
	}
	s, ok := e.neighbours[cell]
	if !ok {
		return nil, false
	}
	return s.Until(until), true
}

// MatchingMeasurements returns every neighbour series of an entity with at
// least one observation at or before until, keyed by neighbour cell id.
func (kb *KnowledgeBase) MatchingMeasurements(until timectrl.Millis, et model.EntityType, id int) (map[int]Series[model.Measurement], bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	e := kb.lookup(et, id)
	if e == nil {
		return nil, false
	}
	out := make(map[int]Series[model.Measurement], len(e.neighbours))
	for cell, s := range e.neighbours {
		if filtered := s.Until(until); len(filtered) > 0 {
			out[cell] = filtered
		}
	}
	return out, true
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.subs = append(kb.subs, fn)
	idx := len(kb.subs) - 1

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		if idx < 0 || idx >= len(kb.subs) {
			return
		}
		kb.subs = append(kb.subs[:idx], kb.subs[idx+1:]...)
		idx = -1
	}
}
