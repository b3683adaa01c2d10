package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/timeutil"
)

// SyntheticCamera generates a solid-colour JPEG per capture, used in dev
// mode and on benches without camera hardware. The hue rotates per capture
// so downstream consumers can tell frames apart.
type SyntheticCamera struct {
	width, height int
	clock         timeutil.Clock
	captures      int
}

// NewSyntheticCamera builds a generator at the given resolution. clock may
// be nil.
func NewSyntheticCamera(width, height int, clock timeutil.Clock) *SyntheticCamera {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticCamera{width: width, height: height, clock: clock}
}

// Capture encodes one synthetic frame.
func (c *SyntheticCamera) Capture(ctx context.Context) ([]byte, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}

	c.captures++
	fill := color.RGBA{
		R: uint8(40 * (c.captures % 7)),
		G: uint8(60 * (c.captures % 5)),
		B: 200,
		A: 255,
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to encode synthetic frame: %w", err)
	}
	return buf.Bytes(), c.clock.Now(), nil
}
