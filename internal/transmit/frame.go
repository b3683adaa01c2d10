// Package transmit buffers captured frames and delivers them to the
// vision-processing sink over HTTP.
//
// The queue is bounded and lossy: under sustained connectivity loss the
// oldest pending frames are evicted so memory stays flat, and a
// frame that exhausts its retry budget is dropped and counted rather than
// blocking everything behind it. Enqueue never blocks the capture path.
package transmit

import (
	"time"

	"github.com/google/uuid"
)

// Frame is one captured image plus the metadata the sink needs. The queue
// owns a frame from Enqueue until delivery or drop.
type Frame struct {
	ID         string
	Image      []byte
	StationID  string
	SpotNumber int
	Reason     string
	Time       time.Time
}

// NewFrame assigns a fresh ID to a captured image.
func NewFrame(image []byte, stationID string, spotNumber int, reason string, capturedAt time.Time) Frame {
	return Frame{
		ID:         uuid.NewString(),
		Image:      image,
		StationID:  stationID,
		SpotNumber: spotNumber,
		Reason:     reason,
		Time:       capturedAt,
	}
}
