// Package presence turns noisy ToF distance readings into vehicle
// presence transitions for a single parking spot.
//
// The pipeline is Sample -> Filter (sliding median over valid readings) ->
// StateMachine (two-threshold hysteresis). All functions take explicit
// timestamps so a replayed sample sequence reproduces the same events.
package presence

import "time"

// Sample is one reading from the distance sensor. Invalid readings (sensor
// fault, out-of-range glint) carry Valid=false and are excluded from
// smoothing rather than treated as zero.
type Sample struct {
	Time        time.Time
	Millimeters int
	Valid       bool
}

// EventKind distinguishes the two presence transitions.
type EventKind string

const (
	// Enter means a vehicle has arrived in the spot.
	Enter EventKind = "enter"
	// Exit means the spot has been vacated.
	Exit EventKind = "exit"
)

// Event is emitted exactly once per state transition.
type Event struct {
	Kind       EventKind
	Time       time.Time
	DistanceMM float64
}

// State is the classified occupancy of the spot.
type State string

const (
	Absent  State = "absent"
	Present State = "present"
)
