package monitoring

import "expvar"

// Device-wide counters, published through expvar so they show up on the
// status server without extra plumbing. Runtime errors in sensing, capture,
// and transmission are recovered locally; these counters are how those
// recoveries stay observable.
var (
	// InvalidSamples counts sensor readings that could not be used
	// (out of range or unparseable).
	InvalidSamples = expvar.NewInt("samples_invalid")

	// PresenceEvents counts ENTER/EXIT transitions.
	PresenceEvents = expvar.NewInt("presence_events")

	// Captures counts frames successfully produced by the camera.
	Captures = expvar.NewInt("captures")

	// CaptureErrors counts capture instructions the camera failed to satisfy.
	CaptureErrors = expvar.NewInt("capture_errors")

	// FramesDelivered counts frames acknowledged by the image sink.
	FramesDelivered = expvar.NewInt("frames_delivered")

	// FramesDropped counts frames abandoned after exhausting retries.
	FramesDropped = expvar.NewInt("frames_dropped")

	// FramesEvicted counts frames pushed out of a full queue.
	FramesEvicted = expvar.NewInt("frames_evicted")

	// SendRetries counts failed transmission attempts that were retried.
	SendRetries = expvar.NewInt("send_retries")
)
