package presence

import "time"

// StateMachine classifies smoothed distances into ABSENT/PRESENT with a
// hysteresis band. Transitions happen only when the distance crosses one of
// the two thresholds; readings inside the band, and unknown readings, hold
// the current state. This guarantees emitted events strictly alternate
// starting with Enter.
type StateMachine struct {
	presentBelowMM float64
	absentAboveMM  float64
	state          State
	lastEvent      *Event
}

// NewStateMachine builds a state machine starting in Absent. presentBelowMM
// must be strictly below absentAboveMM; config validation enforces this
// before the process starts.
func NewStateMachine(presentBelowMM, absentAboveMM float64) *StateMachine {
	return &StateMachine{
		presentBelowMM: presentBelowMM,
		absentAboveMM:  absentAboveMM,
		state:          Absent,
	}
}

// State returns the current classification.
func (m *StateMachine) State() State { return m.state }

// LastEvent returns the most recent transition, or nil before the first one.
func (m *StateMachine) LastEvent() *Event { return m.lastEvent }

// Observe feeds one smoothed reading to the machine. known=false means the
// filter window held no valid samples; the state holds and no event is
// emitted. Returns a non-nil Event only on a transition.
func (m *StateMachine) Observe(distanceMM float64, known bool, now time.Time) *Event {
	if !known {
		return nil
	}

	switch m.state {
	case Absent:
		if distanceMM < m.presentBelowMM {
			m.state = Present
			ev := &Event{Kind: Enter, Time: now, DistanceMM: distanceMM}
			m.lastEvent = ev
			return ev
		}
	case Present:
		if distanceMM > m.absentAboveMM {
			m.state = Absent
			ev := &Event{Kind: Exit, Time: now, DistanceMM: distanceMM}
			m.lastEvent = ev
			return ev
		}
	}
	return nil
}

// Detector bundles a Filter and StateMachine behind a single per-sample
// call, which is how the run loop consumes them.
type Detector struct {
	filter  *Filter
	machine *StateMachine
}

// NewDetector wires a filter of the given window size to a hysteresis state
// machine.
func NewDetector(windowSize int, presentBelowMM, absentAboveMM float64) *Detector {
	return &Detector{
		filter:  NewFilter(windowSize),
		machine: NewStateMachine(presentBelowMM, absentAboveMM),
	}
}

// Update smooths one raw sample and classifies the result. Returns a non-nil
// Event only on a presence transition.
func (d *Detector) Update(s Sample) *Event {
	mm, ok := d.filter.Push(s)
	return d.machine.Observe(mm, ok, s.Time)
}

// State returns the current classification.
func (d *Detector) State() State { return d.machine.State() }

// LastEvent returns the most recent transition, or nil before the first one.
func (d *Detector) LastEvent() *Event { return d.machine.LastEvent() }

// Smoothed returns the current filter output.
func (d *Detector) Smoothed() (float64, bool) { return d.filter.Value() }
