// Package camera abstracts the still-frame source. The real hardware driver
// lives outside this process; production installs shell out to a capture
// command (rpicam-still or similar) that writes a JPEG to stdout, and dev
// installs use a synthetic frame generator.
package camera

import (
	"context"
	"time"
)

// Camera produces one encoded frame per call. A capture failure is reported
// to the caller but must not affect presence classification or scheduling;
// the next scheduled instruction still fires on time.
type Camera interface {
	// Capture returns JPEG bytes and the capture timestamp.
	Capture(ctx context.Context) ([]byte, time.Time, error)
}
