package transmit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/monitoring"
	"github.com/smooth-dev-team/raspberry-pi-camera/internal/timeutil"
)

// Recorder receives delivery outcomes for the event log. Implementations
// must not block for long; they run on the dispatcher goroutine.
type Recorder interface {
	RecordDelivery(frameID, reason string, attempts int, outcome string, at time.Time) error
}

// Delivery outcomes passed to the Recorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeEvicted   = "evicted"
)

// Queue is a bounded FIFO of outbound frames with a single dispatcher
// goroutine. Frames are delivered in enqueue order; a frame is retried with
// exponential backoff and jitter until it is accepted or its attempt budget
// runs out, in which case it is dropped and reported. When the queue is
// full the oldest pending frame is evicted.
type Queue struct {
	mu      sync.Mutex
	pending []Frame
	wake    chan struct{}

	capacity    int
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	sink     Sink
	clock    timeutil.Clock
	recorder Recorder
	rng      *rand.Rand
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	Capacity    int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Clock defaults to the real clock; tests inject a MockClock so retry
	// backoff does not actually sleep.
	Clock timeutil.Clock

	// Recorder is optional.
	Recorder Recorder
}

// NewQueue builds a queue that delivers through sink.
func NewQueue(sink Sink, opts QueueOptions) *Queue {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Queue{
		wake:        make(chan struct{}, 1),
		capacity:    opts.Capacity,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		sink:        sink,
		clock:       opts.Clock,
		recorder:    opts.Recorder,
		rng:         rand.New(rand.NewSource(opts.Clock.Now().UnixNano())),
	}
}

// Enqueue hands a frame to the queue. It never blocks: if the queue is at
// capacity the oldest pending frame is evicted to make room.
func (q *Queue) Enqueue(f Frame) {
	q.mu.Lock()
	for len(q.pending) >= q.capacity {
		evicted := q.pending[0]
		q.pending = q.pending[1:]
		monitoring.FramesEvicted.Add(1)
		monitoring.Logf("transmit: queue full, evicting frame %s (%s)", evicted.ID, evicted.Reason)
		q.record(evicted, 0, OutcomeEvicted)
	}
	q.pending = append(q.pending, f)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of frames waiting for delivery.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) record(f Frame, attempts int, outcome string) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.RecordDelivery(f.ID, f.Reason, attempts, outcome, q.clock.Now()); err != nil {
		monitoring.Logf("transmit: failed to record %s outcome for frame %s: %v", outcome, f.ID, err)
	}
}

func (q *Queue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Frame{}, false
	}
	f := q.pending[0]
	q.pending = q.pending[1:]
	return f, true
}

// backoff returns the wait before retry attempt n (1-based), exponential
// with full jitter, capped at MaxBackoff. Jitter desynchronizes retry
// storms when many devices share one sink.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.baseBackoff << (attempt - 1)
	if d > q.maxBackoff || d <= 0 {
		d = q.maxBackoff
	}
	half := d / 2
	return half + time.Duration(q.rng.Int63n(int64(half)+1))
}

// Run dispatches frames until the context is cancelled. It is the only
// goroutine touching the sink, which keeps per-spot delivery ordered.
func (q *Queue) Run(ctx context.Context) error {
	for {
		f, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		q.deliver(ctx, f)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// deliver makes up to maxAttempts attempts to send one frame.
func (q *Queue) deliver(ctx context.Context, f Frame) {
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err := q.sink.Send(ctx, f)
		if err == nil {
			monitoring.FramesDelivered.Add(1)
			q.record(f, attempt, OutcomeDelivered)
			return
		}
		if ctx.Err() != nil {
			return
		}

		monitoring.Logf("transmit: attempt %d/%d for frame %s failed: %v", attempt, q.maxAttempts, f.ID, err)
		if attempt == q.maxAttempts {
			break
		}

		monitoring.SendRetries.Add(1)
		select {
		case <-q.clock.After(q.backoff(attempt)):
		case <-ctx.Done():
			return
		}
	}

	monitoring.FramesDropped.Add(1)
	monitoring.Logf("transmit: dropping frame %s (%s) after %d attempts", f.ID, f.Reason, q.maxAttempts)
	q.record(f, q.maxAttempts, OutcomeDropped)
}
