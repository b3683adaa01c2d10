package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/timeutil"
)

// CommandCamera captures by running an external still command and reading
// the encoded image from its stdout, e.g.
//
//	command: ["rpicam-still", "-n", "-t", "1", "-o", "-"]
//
// Successive captures are serialized by the caller (the run loop), so no
// locking is needed here.
type CommandCamera struct {
	argv    []string
	timeout time.Duration
	clock   timeutil.Clock
}

// NewCommandCamera builds a camera around the given argv. clock may be nil.
func NewCommandCamera(argv []string, timeout time.Duration, clock timeutil.Clock) (*CommandCamera, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("camera command must not be empty")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CommandCamera{argv: argv, timeout: timeout, clock: clock}, nil
}

// Capture runs the still command once, bounded by the configured timeout.
func (c *CommandCamera) Capture(ctx context.Context) ([]byte, time.Time, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	capturedAt := c.clock.Now()
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, time.Time{}, fmt.Errorf("capture command failed: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, time.Time{}, fmt.Errorf("capture command produced no image data")
	}
	return stdout.Bytes(), capturedAt, nil
}
