package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
)

const sampleLog = `Simulation starting
100 ms: Cell state: Cell 1 at 0 0 direction 0
100 ms: Cell state: Cell 2 at 500.5 -20 direction 90
100 ms: UE seen at cell: Cell 1 saw IMSI 7 (context: /NodeList/0/DeviceList/0/LteEnbRrc/ConnectionEstablished)
200 ms: UE state: IMSI 7 at 30 40 with 1200 received bytes
250 ms: Measurement report: Cell 1 got measurements from IMSI 7 (ID 1, cell:RSRP/RSRQ 1:50/20 2:40/15)
random chatter that matches nothing
300 ms: UE seen at cell: Cell 2 saw IMSI 7 (context: /NodeList/1/DeviceList/0/LteEnbRrc/HandoverEndOk)
`

type countingObserver struct {
	lines  map[Pattern]int
	errors int
}

func (o *countingObserver) ObserveLine(p Pattern) {
	if o.lines == nil {
		o.lines = make(map[Pattern]int)
	}
	o.lines[p]++
}

func (o *countingObserver) ObserveParseError() { o.errors++ }

func TestParseSampleLog(t *testing.T) {
	store := kb.NewKnowledgeBase()
	obs := &countingObserver{}
	stats, err := New(nil, obs).Parse(context.Background(), strings.NewReader(sampleLog), store)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if stats.Lines != 8 || stats.Ignored != 2 {
		t.Fatalf("stats = %+v, want 8 lines and 2 ignored", stats)
	}
	wantMatches := map[Pattern]int{
		PatternCellState:         2,
		PatternUEState:           1,
		PatternUESeenAtCell:      2,
		PatternMeasurementReport: 1,
	}
	if !reflect.DeepEqual(stats.Matches, wantMatches) {
		t.Fatalf("matches = %v, want %v", stats.Matches, wantMatches)
	}
	if !reflect.DeepEqual(obs.lines, wantMatches) {
		t.Fatalf("observer lines = %v, want %v", obs.lines, wantMatches)
	}

	if got := store.Objects(model.EntityCell); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("cells = %v, want [1 2]", got)
	}
	coords, ok := store.FullCoords(model.EntityCell, 2)
	if !ok || coords[0].Value != (model.Point{X: 500.5, Y: -20}) {
		t.Fatalf("cell 2 coords = %#v, %v", coords, ok)
	}
	dir, ok := store.LatestValue(model.EntityCell, 2, model.SignalDirection)
	if !ok || dir != 90 {
		t.Fatalf("cell 2 direction = %v, %v", dir, ok)
	}

	assoc, ok := store.FullTimeseries(model.EntityUE, 7, model.SignalCellAssociated)
	if !ok || !reflect.DeepEqual(assoc.Values(), []float64{1, 2}) {
		t.Fatalf("cell_associated = %#v, %v", assoc, ok)
	}
	if assoc[1].Timestep != 300 {
		t.Fatalf("second association timestep = %d, want 300", assoc[1].Timestep)
	}

	rx, ok := store.LatestValue(model.EntityUE, 7, model.SignalBytesRx)
	if !ok || rx != 1200 {
		t.Fatalf("bytes_rx = %v, %v", rx, ok)
	}
	m, ok := store.Measurements(1000, 7, 2)
	if !ok || len(m) != 1 || m[0].Value != (model.Measurement{RSRP: 40, RSRQ: 15}) || m[0].Timestep != 250 {
		t.Fatalf("measurements for cell 2 = %#v, %v", m, ok)
	}
}

func TestParseIsIdempotentAcrossFreshStores(t *testing.T) {
	first := kb.NewKnowledgeBase()
	second := kb.NewKnowledgeBase()
	p := New(nil, nil)
	for _, store := range []*kb.KnowledgeBase{first, second} {
		if _, err := p.Parse(context.Background(), strings.NewReader(sampleLog), store); err != nil {
			t.Fatalf("Parse error: %v", err)
		}
	}

	for _, et := range []model.EntityType{model.EntityCell, model.EntityUE} {
		ids := first.Objects(et)
		if !reflect.DeepEqual(ids, second.Objects(et)) {
			t.Fatalf("%s ids differ", et)
		}
		for _, id := range ids {
			for _, sig := range []model.Signal{model.SignalBytesRx, model.SignalCellAssociated, model.SignalDirection} {
				a, _ := first.FullTimeseries(et, id, sig)
				b, _ := second.FullTimeseries(et, id, sig)
				if !reflect.DeepEqual(a, b) {
					t.Fatalf("%s %d %s differs: %v vs %v", et, id, sig, a, b)
				}
			}
			a, _ := first.FullCoords(et, id)
			b, _ := second.FullCoords(et, id)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("%s %d coords differ", et, id)
			}
			ma, _ := first.MatchingMeasurements(1<<40, et, id)
			mb, _ := second.MatchingMeasurements(1<<40, et, id)
			if !reflect.DeepEqual(ma, mb) {
				t.Fatalf("%s %d measurements differ", et, id)
			}
		}
	}
}

func TestParseProcessesEveryMatchOnALine(t *testing.T) {
	line := "100 ms: Cell state: Cell 1 at 0 0 direction 0 | 100 ms: UE seen at cell: Cell 1 saw IMSI 3 (context: x)\n"
	store := kb.NewKnowledgeBase()
	stats, err := New(nil, nil).Parse(context.Background(), strings.NewReader(line), store)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if stats.Matches[PatternCellState] != 1 || stats.Matches[PatternUESeenAtCell] != 1 {
		t.Fatalf("matches = %v, want one cell state and one ue seen", stats.Matches)
	}
	if _, ok := store.FullCoords(model.EntityCell, 1); !ok {
		t.Fatalf("cell 1 coords missing")
	}
	if v, ok := store.LatestValue(model.EntityUE, 3, model.SignalCellAssociated); !ok || v != 1 {
		t.Fatalf("ue 3 association = %v, %v", v, ok)
	}
}

func TestParseErrorIdentifiesLineAndKeepsEarlierLines(t *testing.T) {
	log := "100 ms: Cell state: Cell 1 at 0 0 direction 0\n" +
		"200 ms: UE state: IMSI 7 at 1.0 abc with 5 received bytes\n" +
		"300 ms: Cell state: Cell 2 at 0 0 direction 0\n"
	store := kb.NewKnowledgeBase()
	obs := &countingObserver{}
	_, err := New(nil, obs).Parse(context.Background(), strings.NewReader(log), store)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if pe.Line != 2 || pe.Field != "y coordinate" || !strings.Contains(pe.Text, "IMSI 7") {
		t.Fatalf("ParseError = %+v", pe)
	}
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("ParseError does not unwrap to *strconv.NumError")
	}
	if obs.errors != 1 {
		t.Fatalf("observer errors = %d, want 1", obs.errors)
	}

	if _, ok := store.FullCoords(model.EntityCell, 1); !ok {
		t.Fatalf("observations from line 1 were lost")
	}
	if got := store.Objects(model.EntityUE); len(got) != 0 {
		t.Fatalf("failing line committed UE observations: %v", got)
	}
	if _, ok := store.FullCoords(model.EntityCell, 2); ok {
		t.Fatalf("parse continued past the failing line")
	}
}

func TestParseErrorInMeasurementCommitsNothingFromLine(t *testing.T) {
	log := "250 ms: Measurement report: Cell 1 got measurements from IMSI 7 (ID 1, cell:RSRP/RSRQ 1:50/20 2:x/15)\n"
	store := kb.NewKnowledgeBase()
	_, err := New(nil, nil).Parse(context.Background(), strings.NewReader(log), store)

	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "rsrp" || pe.Line != 1 {
		t.Fatalf("error = %v, want rsrp ParseError on line 1", err)
	}
	if cells := store.NeighbourCells(model.EntityUE, 7); len(cells) != 0 {
		t.Fatalf("partial measurement committed: %v", cells)
	}
}

func TestParseMalformedTimestamp(t *testing.T) {
	log := "1e3 ms: UE seen at cell: Cell 1 saw IMSI 7 (context: x)\n"
	_, err := New(nil, nil).Parse(context.Background(), strings.NewReader(log), kb.NewKnowledgeBase())
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "timestep" {
		t.Fatalf("error = %v, want timestep ParseError", err)
	}
}

func TestParseHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, nil).Parse(ctx, strings.NewReader(sampleLog), kb.NewKnowledgeBase())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulatorFile.txt")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	store := kb.NewKnowledgeBase()
	if _, err := New(nil, nil).ParseFile(context.Background(), path, store); err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if got := store.Objects(model.EntityUE); !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("ues = %v", got)
	}

	if _, err := New(nil, nil).ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing"), store); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
