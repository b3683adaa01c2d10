package transmit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smooth-dev-team/raspberry-pi-camera/internal/timeutil"
)

// flakySink fails the first failures deliveries of each frame, then accepts.
type flakySink struct {
	mu        sync.Mutex
	failures  int
	attempts  map[string]int
	delivered []Frame
	done      chan string
}

func newFlakySink(failures int) *flakySink {
	return &flakySink{
		failures: failures,
		attempts: make(map[string]int),
		done:     make(chan string, 64),
	}
}

func (s *flakySink) Send(ctx context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[f.ID]++
	if s.attempts[f.ID] <= s.failures {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, f)
	s.done <- f.ID
	return nil
}

func (s *flakySink) deliveredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.delivered))
	for i, f := range s.delivered {
		ids[i] = f.ID
	}
	return ids
}

type recordedOutcome struct {
	frameID  string
	attempts int
	outcome  string
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
	notify   chan recordedOutcome
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{notify: make(chan recordedOutcome, 64)}
}

func (r *fakeRecorder) RecordDelivery(frameID, reason string, attempts int, outcome string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := recordedOutcome{frameID: frameID, attempts: attempts, outcome: outcome}
	r.outcomes = append(r.outcomes, o)
	r.notify <- o
	return nil
}

func startQueue(t *testing.T, q *Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	return cancel
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case id := <-ch:
			if id == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for delivery of %s", want)
		}
	}
}

func TestQueueRetriesThenDelivers(t *testing.T) {
	sink := newFlakySink(3)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	q := NewQueue(sink, QueueOptions{
		Capacity:    8,
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		Clock:       clock,
	})
	cancel := startQueue(t, q)
	defer cancel()

	f := testFrame()
	q.Enqueue(f)
	waitFor(t, sink.done, f.ID)

	sink.mu.Lock()
	attempts := sink.attempts[f.ID]
	sink.mu.Unlock()
	require.Equal(t, 4, attempts, "3 failures then 1 success")

	// Backoff slept between each failed attempt, exponential and jittered.
	slept := clock.Slept()
	require.Len(t, slept, 3)
	for i, d := range slept {
		base := time.Second << i
		require.GreaterOrEqual(t, d, base/2, "backoff %d too short", i)
		require.LessOrEqual(t, d, base, "backoff %d too long", i)
	}
}

func TestQueueDropsAfterAttemptCeiling(t *testing.T) {
	sink := newFlakySink(1000) // never succeeds
	rec := newFakeRecorder()
	q := NewQueue(sink, QueueOptions{
		Capacity:    8,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
		Clock:       timeutil.NewMockClock(time.Unix(0, 0)),
		Recorder:    rec,
	})
	cancel := startQueue(t, q)
	defer cancel()

	f := testFrame()
	q.Enqueue(f)

	select {
	case o := <-rec.notify:
		require.Equal(t, f.ID, o.frameID)
		require.Equal(t, OutcomeDropped, o.outcome)
		require.Equal(t, 3, o.attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for drop report")
	}

	sink.mu.Lock()
	attempts := sink.attempts[f.ID]
	sink.mu.Unlock()
	require.Equal(t, 3, attempts)
}

func TestQueueDeliversExactlyOnceInOrder(t *testing.T) {
	sink := newFlakySink(0)
	q := NewQueue(sink, QueueOptions{
		Capacity:    16,
		MaxAttempts: 2,
		Clock:       timeutil.NewMockClock(time.Unix(0, 0)),
	})

	var frames []Frame
	for i := 0; i < 10; i++ {
		f := NewFrame([]byte{byte(i)}, "station-001", 3, fmt.Sprintf("entry-%d", i), time.Unix(int64(i), 0))
		frames = append(frames, f)
		q.Enqueue(f)
	}

	cancel := startQueue(t, q)
	defer cancel()
	waitFor(t, sink.done, frames[9].ID)

	var wantIDs []string
	for _, f := range frames {
		wantIDs = append(wantIDs, f.ID)
	}
	require.Equal(t, wantIDs, sink.deliveredIDs(), "delivery must preserve enqueue order")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, f := range frames {
		require.Equal(t, 1, sink.attempts[f.ID], "frame %s delivered more than once", f.ID)
	}
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	sink := newFlakySink(0)
	rec := newFakeRecorder()
	q := NewQueue(sink, QueueOptions{
		Capacity:    3,
		MaxAttempts: 1,
		Clock:       timeutil.NewMockClock(time.Unix(0, 0)),
		Recorder:    rec,
	})

	// No dispatcher running: everything stays pending.
	var frames []Frame
	for i := 0; i < 5; i++ {
		f := NewFrame([]byte{byte(i)}, "station-001", 3, "entry", time.Unix(int64(i), 0))
		frames = append(frames, f)
		q.Enqueue(f)
	}

	require.Equal(t, 3, q.Depth())

	// The two oldest were evicted and reported.
	var evicted []string
	for i := 0; i < 2; i++ {
		o := <-rec.notify
		require.Equal(t, OutcomeEvicted, o.outcome)
		evicted = append(evicted, o.frameID)
	}
	require.Equal(t, []string{frames[0].ID, frames[1].ID}, evicted)

	// The survivors deliver in order once the dispatcher starts.
	cancel := startQueue(t, q)
	defer cancel()
	waitFor(t, sink.done, frames[4].ID)
	require.Equal(t, []string{frames[2].ID, frames[3].ID, frames[4].ID}, sink.deliveredIDs())
}

func TestQueueEnqueueNeverBlocks(t *testing.T) {
	sink := newFlakySink(1000)
	q := NewQueue(sink, QueueOptions{
		Capacity:    2,
		MaxAttempts: 1,
		Clock:       timeutil.NewMockClock(time.Unix(0, 0)),
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Enqueue(NewFrame(nil, "station-001", 3, "entry", time.Unix(0, 0)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	require.Equal(t, 2, q.Depth())
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	sink := newFlakySink(0)
	q := NewQueue(sink, QueueOptions{Capacity: 2, MaxAttempts: 1, Clock: timeutil.NewMockClock(time.Unix(0, 0))})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
