// Package parser turns simulator log text into observations in a kb.KnowledgeBase.
package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

// Pattern names one of the recognised event shapes.
type Pattern string

const (
	PatternCellState         Pattern = "cell_state"
	PatternUEState           Pattern = "ue_state"
	PatternUESeenAtCell      Pattern = "ue_seen_at_cell"
	PatternMeasurementReport Pattern = "measurement_report"
)

// Patterns lists every event shape in the order they are tried on a line.
var Patterns = []Pattern{PatternCellState, PatternUEState, PatternUESeenAtCell, PatternMeasurementReport}

var (
	cellStateRe = regexp.MustCompile(`(\S+) ms: Cell state: Cell (\S+) at (\S+) (\S+) direction (\S+)`)
	ueStateRe   = regexp.MustCompile(`(\S+) ms: UE state: IMSI (\S+) at (\S+) (\S+) with (\S+) received bytes`)
	ueSeenRe    = regexp.MustCompile(`(\S+) ms: UE seen at cell: Cell (\S+) saw IMSI (\S+) \(context: [^)]*\)`)
	measRe      = regexp.MustCompile(`(\S+) ms: Measurement report: Cell .*? got measurements from IMSI (\S+) \(ID [^,]*, cell:RSRP/RSRQ ([^)]*)\)`)
	measEntryRe = regexp.MustCompile(`^([^:]+):([^/]+)/(.+)$`)
)

// maxLineBytes bounds a single log line. Measurement reports grow with the
// number of neighbour cells.
const maxLineBytes = 1 << 20

// Stats summarises one parse run.
type Stats struct {
	Lines   int
	Ignored int
	Matches map[Pattern]int
}

// Observer receives per-line parse outcomes. The metrics collector
// implements it; nil is allowed.
type Observer interface {
	ObserveLine(p Pattern)
	ObserveParseError()
}

// Parser reads simulator logs. The zero value is usable.
type Parser struct {
	Log      logging.Logger
	Observer Observer
}

// New constructs a Parser.
func New(log logging.Logger, obs Observer) *Parser {
	return &Parser{Log: log, Observer: obs}
}

// ParseFile opens path and parses it into store.
func (p *Parser) ParseFile(ctx context.Context, path string, store *kb.KnowledgeBase) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open log %q: %w", path, err)
	}
	defer f.Close()
	return p.Parse(ctx, f, store)
}

// Parse reads r line by line and deposits every recognised event into store.
// Lines that match no pattern are skipped. The first malformed numeric field
// aborts the parse with a *ParseError; observations from earlier lines stay
// in the store and nothing from the failing line is added.
func (p *Parser) Parse(ctx context.Context, r io.Reader, store *kb.KnowledgeBase) (Stats, error) {
	if store == nil {
		return Stats{}, fmt.Errorf("parse: store is nil")
	}
	log := p.Log
	if log == nil {
		log = logging.Noop()
	}

	stats := Stats{Matches: make(map[Pattern]int, len(Patterns))}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := strings.TrimRight(sc.Text(), "\r")

		adds, err := parseLine(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = stats.Lines
				pe.Text = line
			}
			if p.Observer != nil {
				p.Observer.ObserveParseError()
			}
			log.Error(ctx, "malformed log line", logging.Int("line", stats.Lines), logging.Err(err))
			return stats, err
		}
		if len(adds) == 0 {
			stats.Ignored++
			continue
		}
		for _, a := range adds {
			if err := store.Add(a.ts, a.entity, a.id, a.fields...); err != nil {
				return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			stats.Matches[a.pattern]++
			if p.Observer != nil {
				p.Observer.ObserveLine(a.pattern)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read log: %w", err)
	}

	log.Debug(ctx, "log parsed",
		logging.Int("lines", stats.Lines),
		logging.Int("ignored", stats.Ignored),
		logging.Any("matches", stats.Matches),
	)
	return stats, nil
}

// pendingAdd is one validated store.Add call. A line is fully converted
// before anything is committed.
type pendingAdd struct {
	pattern Pattern
	ts      timectrl.Millis
	entity  model.EntityType
	id      int
	fields  []kb.Field
}

func parseLine(line string) ([]pendingAdd, error) {
	var adds []pendingAdd

	for _, m := range cellStateRe.FindAllStringSubmatch(line, -1) {
		ts, err := atoiField("timestep", m[1])
		if err != nil {
			return nil, err
		}
		id, err := atoiField("cell id", m[2])
		if err != nil {
			return nil, err
		}
		x, y, err := coordFields(m[3], m[4])
		if err != nil {
			return nil, err
		}
		dir, err := atoiField("direction", m[5])
		if err != nil {
			return nil, err
		}
		adds = append(adds, pendingAdd{
			pattern: PatternCellState,
			ts:      timectrl.Millis(ts),
			entity:  model.EntityCell,
			id:      id,
			fields:  []kb.Field{kb.Coords(x, y), kb.Scalar(model.SignalDirection, float64(dir))},
		})
	}

	for _, m := range ueStateRe.FindAllStringSubmatch(line, -1) {
		ts, err := atoiField("timestep", m[1])
		if err != nil {
			return nil, err
		}
		id, err := atoiField("IMSI", m[2])
		if err != nil {
			return nil, err
		}
		x, y, err := coordFields(m[3], m[4])
		if err != nil {
			return nil, err
		}
		rx, err := atoiField("received bytes", m[5])
		if err != nil {
			return nil, err
		}
		adds = append(adds, pendingAdd{
			pattern: PatternUEState,
			ts:      timectrl.Millis(ts),
			entity:  model.EntityUE,
			id:      id,
			fields:  []kb.Field{kb.Coords(x, y), kb.Scalar(model.SignalBytesRx, float64(rx))},
		})
	}

	for _, m := range ueSeenRe.FindAllStringSubmatch(line, -1) {
		ts, err := atoiField("timestep", m[1])
		if err != nil {
			return nil, err
		}
		cell, err := atoiField("cell id", m[2])
		if err != nil {
			return nil, err
		}
		ue, err := atoiField("IMSI", m[3])
		if err != nil {
			return nil, err
		}
		adds = append(adds, pendingAdd{
			pattern: PatternUESeenAtCell,
			ts:      timectrl.Millis(ts),
			entity:  model.EntityUE,
			id:      ue,
			fields:  []kb.Field{kb.Scalar(model.SignalCellAssociated, float64(cell))},
		})
	}

	for _, m := range measRe.FindAllStringSubmatch(line, -1) {
		ts, err := atoiField("timestep", m[1])
		if err != nil {
			return nil, err
		}
		ue, err := atoiField("IMSI", m[2])
		if err != nil {
			return nil, err
		}
		fields, err := measurementFields(m[3])
		if err != nil {
			return nil, err
		}
		adds = append(adds, pendingAdd{
			pattern: PatternMeasurementReport,
			ts:      timectrl.Millis(ts),
			entity:  model.EntityUE,
			id:      ue,
			fields:  fields,
		})
	}

	return adds, nil
}

// measurementFields converts "c1:rsrp1/rsrq1 c2:rsrp2/rsrq2 ..." into one
// Neighbour field per entry.
func measurementFields(list string) ([]kb.Field, error) {
	entries := strings.Fields(list)
	fields := make([]kb.Field, 0, len(entries))
	for _, entry := range entries {
		m := measEntryRe.FindStringSubmatch(entry)
		if m == nil {
			return nil, &ParseError{Field: "measurement", Err: fmt.Errorf("entry %q is not cell:rsrp/rsrq", entry)}
		}
		cell, err := atoiField("measurement cell", m[1])
		if err != nil {
			return nil, err
		}
		rsrp, err := atoiField("rsrp", m[2])
		if err != nil {
			return nil, err
		}
		rsrq, err := atoiField("rsrq", m[3])
		if err != nil {
			return nil, err
		}
		fields = append(fields, kb.Neighbour(cell, rsrp, rsrq))
	}
	return fields, nil
}

func atoiField(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Field: name, Err: err}
	}
	return v, nil
}

func coordFields(xs, ys string) (float64, float64, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return 0, 0, &ParseError{Field: "x coordinate", Err: err}
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return 0, 0, &ParseError{Field: "y coordinate", Err: err}
	}
	return x, y, nil
}
