// Package schedule maps presence events and clock ticks onto capture
// instructions for the camera.
//
// Three policies exist: an entry burst after a vehicle arrives, a single
// exit-confirmation shot when it leaves, and recurring verification windows
// while it stays. A policy instance is a window with absolute deadlines, so
// cancellation and supersession are single state transitions and a stalled
// process never owes more than one catch-up instruction.
package schedule

import (
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/presence"
)

// Reason tags a capture instruction with the policy that produced it.
type Reason string

const (
	ReasonEntry    Reason = "entry"
	ReasonExit     Reason = "exit"
	ReasonVerify   Reason = "verification"
	ReasonManual   Reason = "manual"
	ReasonFallback Reason = "fallback"
)

// Instruction tells the camera collaborator to capture one frame now.
type Instruction struct {
	Reason     Reason
	StationID  string
	SpotNumber int
	Time       time.Time
}

// Config holds the per-policy timing, fixed at startup.
type Config struct {
	StationID  string
	SpotNumber int

	EntryEnabled  bool
	EntryDuration time.Duration
	EntryInterval time.Duration

	ExitEnabled bool

	VerifyEnabled  bool
	VerifyPeriod   time.Duration
	VerifyDuration time.Duration
	VerifyInterval time.Duration
}

// window is the one policy instance currently producing instructions.
// Only an entry burst or a verify window can be active at a time; exit
// confirmation is instantaneous and never occupies the slot.
type window struct {
	reason   Reason
	startsAt time.Time
	endsAt   time.Time
	interval time.Duration
	nextAt   time.Time
}

// Scheduler owns the active policy instance and the periodic-verify timer.
// It is driven synchronously by HandleEvent and Tick and is therefore
// deterministic for a given event/tick sequence; it must not be shared
// across goroutines without external locking.
type Scheduler struct {
	cfg Config

	present     bool
	active      *window
	verifyDueAt time.Time // zero while the spot is empty
}

// New builds a scheduler with no vehicle present and no policies armed.
func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// ActiveReason reports which policy currently holds the capture window, or
// "" when idle.
func (s *Scheduler) ActiveReason() Reason {
	if s.active == nil {
		return ""
	}
	return s.active.reason
}

func (s *Scheduler) instruction(reason Reason, now time.Time) Instruction {
	return Instruction{
		Reason:     reason,
		StationID:  s.cfg.StationID,
		SpotNumber: s.cfg.SpotNumber,
		Time:       now,
	}
}

// HandleEvent updates policy state for a presence transition and returns any
// instructions due at the event time.
//
// ENTER has unconditional priority: it cancels whatever window is active
// (including an in-flight burst, which restarts from the new arrival) and
// re-arms the burst and the verification timer from the event timestamp.
// EXIT cancels everything and produces exactly one confirmation instruction.
func (s *Scheduler) HandleEvent(ev presence.Event) []Instruction {
	switch ev.Kind {
	case presence.Enter:
		s.present = true
		s.active = nil
		if s.cfg.VerifyEnabled {
			s.verifyDueAt = ev.Time.Add(s.cfg.VerifyPeriod)
		}
		if s.cfg.EntryEnabled {
			s.active = &window{
				reason:   ReasonEntry,
				startsAt: ev.Time,
				endsAt:   ev.Time.Add(s.cfg.EntryDuration),
				interval: s.cfg.EntryInterval,
				nextAt:   ev.Time,
			}
		}
		return s.Tick(ev.Time)

	case presence.Exit:
		s.present = false
		s.active = nil
		s.verifyDueAt = time.Time{}
		if !s.cfg.ExitEnabled {
			return nil
		}
		return []Instruction{s.instruction(ReasonExit, ev.Time)}
	}
	return nil
}

// Tick advances policy state to now and returns the instructions due. All
// accounting uses absolute deadlines: after a stall the active window is
// retired or resumed based on wall time, and at most one instruction is
// emitted per tick, so missed ticks are never compensated with a burst.
func (s *Scheduler) Tick(now time.Time) []Instruction {
	var out []Instruction

	// Retire an expired window before emitting anything from it.
	if s.active != nil && !now.Before(s.active.endsAt) {
		s.retireActive()
	}

	// Open a verification window when one is due and nothing else holds the
	// capture slot. Windows align to the verify period: a stall that
	// swallows a whole window skips it rather than running it late.
	if s.active == nil && s.present && s.cfg.VerifyEnabled && !s.verifyDueAt.IsZero() && !now.Before(s.verifyDueAt) {
		startsAt := s.verifyDueAt
		for !now.Before(startsAt.Add(s.cfg.VerifyDuration)) {
			startsAt = startsAt.Add(s.cfg.VerifyPeriod)
		}
		if !now.Before(startsAt) {
			s.active = &window{
				reason:   ReasonVerify,
				startsAt: startsAt,
				endsAt:   startsAt.Add(s.cfg.VerifyDuration),
				interval: s.cfg.VerifyInterval,
				nextAt:   startsAt,
			}
		} else {
			s.verifyDueAt = startsAt
		}
	}

	if s.active != nil && !now.Before(s.active.nextAt) {
		out = append(out, s.instruction(s.active.reason, now))
		s.active.nextAt = now.Add(s.active.interval)
	}

	return out
}

// retireActive closes the active window and, for a verification window,
// schedules the next one a full period after this one opened.
func (s *Scheduler) retireActive() {
	if s.active.reason == ReasonVerify {
		s.verifyDueAt = s.active.startsAt.Add(s.cfg.VerifyPeriod)
	}
	s.active = nil
}
