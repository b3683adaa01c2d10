package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(5 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(5*time.Second))
	}

	if got := c.Since(start); got != 5*time.Second {
		t.Errorf("Since(start) = %v, want 5s", got)
	}
}

func TestMockClockSleepDoesNotBlock(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))

	done := make(chan struct{})
	go func() {
		c.Sleep(time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep on mock clock blocked")
	}

	slept := c.Slept()
	if len(slept) != 1 || slept[0] != time.Hour {
		t.Errorf("Slept() = %v, want [1h]", slept)
	}
}

func TestMockClockAfterDeliversImmediately(t *testing.T) {
	c := NewMockClock(time.Unix(100, 0))
	select {
	case got := <-c.After(30 * time.Second):
		want := time.Unix(130, 0)
		if !got.Equal(want) {
			t.Errorf("After delivered %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("After on mock clock never delivered")
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(3 * time.Second)

	var ticks int
	for {
		select {
		case <-ticker.C():
			ticks++
		default:
			if ticks != 3 {
				t.Errorf("got %d ticks after advancing 3s, want 3", ticks)
			}
			return
		}
	}
}

func TestMockTickerStopped(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(10 * time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker delivered a tick")
	default:
	}
}
