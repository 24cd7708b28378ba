package core

import (
	"testing"

	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

func mustAdd(t *testing.T, store *kb.KnowledgeBase, ts timectrl.Millis, et model.EntityType, id int, fields ...kb.Field) {
	t.Helper()
	if err := store.Add(ts, et, id, fields...); err != nil {
		t.Fatalf("Add(%d, %s, %d): %v", ts, et, id, err)
	}
}

func addCell(t *testing.T, store *kb.KnowledgeBase, id int, x, y float64) {
	t.Helper()
	mustAdd(t, store, 0, model.EntityCell, id, kb.Coords(x, y), kb.Scalar(model.SignalDirection, 0))
}

func associate(t *testing.T, store *kb.KnowledgeBase, ts timectrl.Millis, ue, cell int) {
	t.Helper()
	mustAdd(t, store, ts, model.EntityUE, ue, kb.Scalar(model.SignalCellAssociated, float64(cell)))
}

// intervalOf returns the single interval of ue at cell.
func intervalOf(t *testing.T, conn *Connectivity, ue, cell int) *Interval {
	t.Helper()
	ids := conn.ByUE[ue][cell]
	if len(ids) != 1 {
		t.Fatalf("ue %d cell %d has %d intervals, want 1", ue, cell, len(ids))
	}
	return conn.Interval(ids[0])
}
