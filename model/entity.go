package model

import "fmt"

// EntityType identifies which family of simulator objects a time series
// belongs to.
type EntityType string

const (
	EntityCell EntityType = "cell"
	EntityUE   EntityType = "ue"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityCell || t == EntityUE
}

// Signal names a fixed per-entity time series.
type Signal string

const (
	SignalCoords         Signal = "coords"
	SignalBytesRx        Signal = "bytes_rx"
	SignalCellAssociated Signal = "cell_associated"
	SignalDirection      Signal = "direction"

	// SignalMeasurement is the signal name reported on events for neighbour
	// measurements, which are stored per neighbour cell rather than per name.
	SignalMeasurement Signal = "measurement"
)

// Point is a position in the simulator's 2-D plane (metres).
type Point struct {
	X float64
	Y float64
}

// String renders the point the way the simulator prints positions.
func (p Point) String() string {
	return fmt.Sprintf("%g %g", p.X, p.Y)
}

// Measurement is one RSRP/RSRQ pair a UE reported for a neighbour cell.
type Measurement struct {
	RSRP int
	RSRQ int
}
