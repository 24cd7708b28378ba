package kb

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/signalsfoundry/handover-analytics/model"
)

func TestAddCreatesEntityAndSeries(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.Add(100, model.EntityUE, 7, Coords(1, 2), Scalar(model.SignalBytesRx, 500)); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	coords, ok := store.FullCoords(model.EntityUE, 7)
	if !ok || len(coords) != 1 || coords[0].Value != (model.Point{X: 1, Y: 2}) {
		t.Fatalf("FullCoords = %#v, %v; want one (1,2) sample", coords, ok)
	}
	rx, ok := store.FullTimeseries(model.EntityUE, 7, model.SignalBytesRx)
	if !ok || len(rx) != 1 || rx[0].Timestep != 100 || rx[0].Value != 500 {
		t.Fatalf("bytes_rx = %#v, %v", rx, ok)
	}
	if got := store.Objects(model.EntityUE); !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("Objects(ue) = %v, want [7]", got)
	}
	if got := store.Objects(model.EntityCell); len(got) != 0 {
		t.Fatalf("Objects(cell) = %v, want empty", got)
	}
}

func TestAddRejectsUnknownEntity(t *testing.T) {
	store := NewKnowledgeBase()
	err := store.Add(0, model.EntityType("enb"), 1, Scalar(model.SignalDirection, 1))
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Fatalf("Add error = %v, want ErrUnknownEntityType", err)
	}
}

func TestMissingSignalIsNotAnError(t *testing.T) {
	store := NewKnowledgeBase()
	if _, ok := store.Timeseries(1000, model.EntityUE, 1, model.SignalBytesRx); ok {
		t.Fatalf("expected missing entity to report ok=false")
	}
	if err := store.Add(0, model.EntityUE, 1, Coords(0, 0)); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, ok := store.Timeseries(1000, model.EntityUE, 1, model.SignalBytesRx); ok {
		t.Fatalf("expected missing signal to report ok=false")
	}
	if store.HasSignal(model.EntityUE, 1, model.SignalBytesRx) {
		t.Fatalf("HasSignal(bytes_rx) = true, want false")
	}
	if !store.HasSignal(model.EntityUE, 1, model.SignalCoords) {
		t.Fatalf("HasSignal(coords) = false, want true")
	}
}

func TestTimeseriesKeepsArrivalOrderAndFiltersUntil(t *testing.T) {
	store := NewKnowledgeBase()
	for _, ts := range []int64{300, 100, 200, 400} {
		if err := store.Add(timeOf(ts), model.EntityUE, 1, Scalar(model.SignalBytesRx, float64(ts))); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	s, ok := store.Timeseries(300, model.EntityUE, 1, model.SignalBytesRx)
	if !ok {
		t.Fatalf("Timeseries ok=false")
	}
	if got, want := s.Values(), []float64{300, 100, 200}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Timeseries(<=300) = %v, want %v", got, want)
	}

	v, ok := store.Value(250, model.EntityUE, 1, model.SignalBytesRx)
	if !ok || v != 200 {
		t.Fatalf("Value(250) = %v, %v; want 200", v, ok)
	}
	latest, ok := store.LatestValue(model.EntityUE, 1, model.SignalBytesRx)
	if !ok || latest != 400 {
		t.Fatalf("LatestValue = %v, %v; want 400", latest, ok)
	}
	last, ok := store.LastNValues(model.EntityUE, 1, model.SignalBytesRx, 2)
	if !ok || !reflect.DeepEqual(last, []float64{200, 400}) {
		t.Fatalf("LastNValues(2) = %v, %v", last, ok)
	}
	all, _ := store.LastNValues(model.EntityUE, 1, model.SignalBytesRx, 10)
	if len(all) != 4 {
		t.Fatalf("LastNValues(10) len = %d, want 4", len(all))
	}
}

func TestReturnedSeriesCannotMutateStore(t *testing.T) {
	store := NewKnowledgeBase()
	_ = store.Add(100, model.EntityUE, 1, Scalar(model.SignalBytesRx, 1))
	s, _ := store.FullTimeseries(model.EntityUE, 1, model.SignalBytesRx)
	s[0].Value = 99

	again, _ := store.FullTimeseries(model.EntityUE, 1, model.SignalBytesRx)
	if again[0].Value != 1 {
		t.Fatalf("stored value changed to %v through a returned slice", again[0].Value)
	}
}

func TestNeighbourMeasurements(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.Add(200, model.EntityUE, 3, Neighbour(2, 40, 15), Neighbour(1, 50, 20)); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := store.Add(400, model.EntityUE, 3, Neighbour(1, 45, 18)); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if got := store.NeighbourCells(model.EntityUE, 3); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("NeighbourCells = %v, want [1 2]", got)
	}

	m, ok := store.Measurements(1000, 3, 1)
	if !ok || len(m) != 2 || m[1].Value != (model.Measurement{RSRP: 45, RSRQ: 18}) {
		t.Fatalf("Measurements(cell 1) = %#v, %v", m, ok)
	}
	if _, ok := store.Measurements(1000, 3, 5); ok {
		t.Fatalf("Measurements for never-seen cell reported ok=true")
	}

	matching, ok := store.MatchingMeasurements(300, model.EntityUE, 3)
	if !ok {
		t.Fatalf("MatchingMeasurements ok=false")
	}
	if len(matching) != 2 || len(matching[1]) != 1 || len(matching[2]) != 1 {
		t.Fatalf("MatchingMeasurements(<=300) = %#v", matching)
	}
	early, _ := store.MatchingMeasurements(100, model.EntityUE, 3)
	if len(early) != 0 {
		t.Fatalf("MatchingMeasurements(<=100) = %#v, want empty", early)
	}
}

func TestClearDropsSeries(t *testing.T) {
	store := NewKnowledgeBase()
	_ = store.Add(0, model.EntityCell, 1, Coords(0, 0))
	store.Clear()
	if got := store.Objects(model.EntityCell); len(got) != 0 {
		t.Fatalf("Objects after Clear = %v, want empty", got)
	}
}

func TestSubscribeReceivesOneEventPerField(t *testing.T) {
	store := NewKnowledgeBase()
	var got []Event
	unsubscribe := store.Subscribe(func(e Event) {
		got = append(got, e)
	})

	_ = store.Add(100, model.EntityCell, 1, Coords(0, 0), Scalar(model.SignalDirection, 90))
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Signal != model.SignalCoords || got[1].Signal != model.SignalDirection {
		t.Fatalf("event signals = %v, %v", got[0].Signal, got[1].Signal)
	}
	if got[0].Type != EventObservationAdded || got[0].Entity != model.EntityCell || got[0].ID != 1 {
		t.Fatalf("unexpected event %#v", got[0])
	}

	unsubscribe()
	_ = store.Add(200, model.EntityCell, 1, Coords(0, 0))
	if len(got) != 2 {
		t.Fatalf("received events after unsubscribe")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Add(timeOf(int64(i)*100), model.EntityUE, 1, Scalar(model.SignalBytesRx, float64(i)))
		}()
		go func() {
			defer wg.Done()
			_, _ = store.FullTimeseries(model.EntityUE, 1, model.SignalBytesRx)
			_ = store.Objects(model.EntityUE)
		}()
	}
	wg.Wait()

	s, ok := store.FullTimeseries(model.EntityUE, 1, model.SignalBytesRx)
	if !ok || len(s) != 10 {
		t.Fatalf("after concurrent adds len=%d ok=%v, want 10", len(s), ok)
	}
}
