// Package tofmux provides an abstraction over the serial port carrying
// time-of-flight distance readings, with the ability for multiple clients to
// subscribe to the parsed sample stream.
//
// The sensor firmware emits one reading per line: the distance in
// millimetres as a decimal integer, or a negative value when ranging
// failed. Samples arrive at the sensor's nominal rate but may be late,
// dropped, or invalid; parsing never fails the stream, it only marks
// samples invalid.
package tofmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/monitoring"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/presence"
)

// MaxRangeMM is the longest reading the sensor can produce; anything above
// it is a firmware glitch and treated as invalid.
const MaxRangeMM = 8000

// Muxer is the interface the run loop consumes.
type Muxer interface {
	// Subscribe creates a new channel for receiving samples. The returned
	// ID identifies the channel when unsubscribing.
	Subscribe() (string, chan presence.Sample)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// Monitor reads the port and fans samples out to subscribers until the
	// context is cancelled.
	Monitor(context.Context) error
	// Close closes subscriber channels and the underlying port.
	Close() error
}

// Porter is the minimal interface needed from a serial port. The
// abstraction enables unit testing without real sensor hardware.
type Porter interface {
	Read(p []byte) (int, error)
	Close() error
}

// Mux reads distance lines from a single port and fans parsed samples out
// to subscribers.
type Mux struct {
	port         Porter
	now          func() time.Time
	subscribers  map[string]chan presence.Sample
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux creates a Mux around an open port.
func NewMux(port Porter) *Mux {
	return &Mux{
		port:        port,
		now:         time.Now,
		subscribers: make(map[string]chan presence.Sample),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new sample channel.
func (m *Mux) Subscribe() (string, chan presence.Sample) {
	id := randomID()
	ch := make(chan presence.Sample, 16)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// ParseLine converts one sensor line into a sample stamped with now.
// Malformed and out-of-range lines produce invalid samples so the
// downstream filter can account for them without ever seeing a fake zero.
func ParseLine(line string, now time.Time) presence.Sample {
	s := presence.Sample{Time: now}
	mm, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || mm <= 0 || mm > MaxRangeMM {
		return s
	}
	s.Millimeters = mm
	s.Valid = true
	return s
}

// Monitor reads lines from the port, parses them, and fans samples out. A
// subscriber that is not keeping up loses samples rather than stalling the
// read loop.
func (m *Mux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scan.Scan() {
			if err := scan.Err(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("sensor read failed: %w", err)
			}
			return ctx.Err()
		}

		sample := ParseLine(scan.Text(), m.now())
		if !sample.Valid {
			monitoring.InvalidSamples.Add(1)
			monitoring.Logf("tofmux: invalid reading %q", scan.Text())
		}

		m.subscriberMu.Lock()
		for _, ch := range m.subscribers {
			select {
			case ch <- sample:
			default:
			}
		}
		m.subscriberMu.Unlock()
	}
}

// Close closes all subscribed channels and the port. Safe to call once.
func (m *Mux) Close() error {
	m.closingMu.Lock()
	if m.closing {
		m.closingMu.Unlock()
		return nil
	}
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	return m.port.Close()
}
