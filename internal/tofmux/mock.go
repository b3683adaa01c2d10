package tofmux

import (
	"io"
	"time"
)

// MockPort implements Porter, replaying canned sensor output on a fixed
// cadence. Used by -dev mode and tests.
type MockPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter
	done   chan struct{}
}

// NewMockPort replays lines (raw sensor bytes, newline separated) forever
// at the given interval.
func NewMockPort(lines []byte, interval time.Duration) *MockPort {
	r, w := io.Pipe()
	p := &MockPort{reader: r, writer: w, done: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pos := 0
		for {
			select {
			case <-p.done:
				w.Close()
				return
			case <-ticker.C:
				line := nextLine(lines, &pos)
				if _, err := w.Write(line); err != nil {
					return
				}
			}
		}
	}()

	return p
}

// nextLine returns the line starting at *pos, advancing and wrapping.
func nextLine(lines []byte, pos *int) []byte {
	if len(lines) == 0 {
		return []byte("\n")
	}
	if *pos >= len(lines) {
		*pos = 0
	}
	start := *pos
	for *pos < len(lines) && lines[*pos] != '\n' {
		*pos++
	}
	if *pos < len(lines) {
		*pos++ // include the newline
	}
	out := lines[start:*pos]
	if out[len(out)-1] != '\n' {
		out = append(append([]byte{}, out...), '\n')
	}
	return out
}

// Read reads replayed bytes.
func (p *MockPort) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

// Close stops the replay goroutine.
func (p *MockPort) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return p.reader.Close()
}

// NewMockMux creates a Mux backed by a replaying MockPort.
func NewMockMux(lines []byte, interval time.Duration) *Mux {
	return NewMux(NewMockPort(lines, interval))
}
