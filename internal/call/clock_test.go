package call

import (
	"context"
	"testing"
	"time"
)

func TestDurationClockEmitsWhileLive(t *testing.T) {
	s := newTestSession()
	if err := s.Activate(""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	clock := NewDurationClock(s, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ticks := make(chan time.Duration, 16)
	go clock.Run(ctx, func(d time.Duration) { ticks <- d })

	select {
	case d := <-ticks:
		if d < 0 {
			t.Fatalf("negative elapsed %v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick from live session")
	}
}

func TestDurationClockStopsWhenSessionEnds(t *testing.T) {
	s := newTestSession()
	if err := s.Activate(""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	clock := NewDurationClock(s, 2*time.Millisecond)

	done := make(chan struct{})
	go func() {
		clock.Run(context.Background(), func(time.Duration) {})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.End("completed"); err != nil {
		t.Fatalf("end: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock kept running after session ended")
	}
}

func TestDurationClockHonorsContextCancel(t *testing.T) {
	s := newTestSession()
	if err := s.Activate(""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	clock := NewDurationClock(s, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		clock.Run(ctx, func(time.Duration) { t.Error("tick after cancel") })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clock did not stop on cancel")
	}
}
