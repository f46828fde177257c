package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInputControllerDeliversFinalOnce(t *testing.T) {
	rec := &scriptedRecognizer{scripts: [][]RecognitionEvent{{
		{Type: RecognitionPartial, Text: "i want"},
		{Type: RecognitionFinal, Text: "i want a test drive", Confidence: 0.88},
	}}}
	c := NewInputController(rec, "en-IN")

	var partials, finals, ends atomic.Int32
	var gotText atomic.Value
	err := c.Start(context.Background(), InputHandlers{
		OnPartial: func(string) { partials.Add(1) },
		OnFinal: func(text string, conf float64) {
			finals.Add(1)
			gotText.Store(text)
			if conf != 0.88 {
				t.Errorf("confidence = %v", conf)
			}
		},
		OnEnd: func() { ends.Add(1) },
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "final result", func() bool { return finals.Load() == 1 })
	waitFor(t, "end callback", func() bool { return ends.Load() == 1 })
	if got := gotText.Load(); got != "i want a test drive" {
		t.Fatalf("text = %v", got)
	}
	if partials.Load() != 1 {
		t.Fatalf("partials = %d", partials.Load())
	}
	if c.Listening() {
		t.Fatal("still listening after final")
	}
	// Redundant stop after the listen finished must be harmless.
	c.Stop()
	if ends.Load() != 1 {
		t.Fatalf("ends = %d after redundant stop", ends.Load())
	}
}

func TestInputControllerRejectsConcurrentListen(t *testing.T) {
	rec := &scriptedRecognizer{delay: time.Hour, scripts: [][]RecognitionEvent{{}}}
	c := NewInputController(rec, "en-IN")
	defer c.Stop()

	if err := c.Start(context.Background(), InputHandlers{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background(), InputHandlers{}); !errors.Is(err, ErrAlreadyListening) {
		t.Fatalf("second start err = %v, want ErrAlreadyListening", err)
	}
}

func TestInputControllerReportsErrorKind(t *testing.T) {
	rec := &scriptedRecognizer{scripts: [][]RecognitionEvent{{
		{Type: RecognitionFailed, Err: &RecognitionError{Kind: KindNoSpeech}},
	}}}
	c := NewInputController(rec, "en-IN")

	var kind atomic.Value
	var ends atomic.Int32
	err := c.Start(context.Background(), InputHandlers{
		OnError: func(e *RecognitionError) { kind.Store(e.Kind) },
		OnEnd:   func() { ends.Add(1) },
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "error callback", func() bool { return ends.Load() == 1 })
	if kind.Load() != KindNoSpeech {
		t.Fatalf("kind = %v, want no-speech", kind.Load())
	}
}

func TestInputControllerStopIsIdempotent(t *testing.T) {
	rec := &scriptedRecognizer{delay: time.Hour, scripts: [][]RecognitionEvent{{}}}
	c := NewInputController(rec, "en-IN")

	var ends atomic.Int32
	if err := c.Start(context.Background(), InputHandlers{
		OnFinal: func(string, float64) { t.Error("final after stop") },
		OnEnd:   func() { ends.Add(1) },
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.Stop()
	c.Stop()
	c.Stop()
	waitFor(t, "single end", func() bool { return ends.Load() == 1 })
	if c.Listening() {
		t.Fatal("still listening after stop")
	}
	if err := c.Push(context.Background(), []byte("x"), 16000); !errors.Is(err, ErrNotListening) {
		t.Fatalf("push after stop err = %v, want ErrNotListening", err)
	}
}

func TestInputControllerStartFailurePropagates(t *testing.T) {
	rec := &scriptedRecognizer{err: &RecognitionError{Kind: KindPermissionDenied}}
	c := NewInputController(rec, "en-IN")

	err := c.Start(context.Background(), InputHandlers{})
	var rerr *RecognitionError
	if !errors.As(err, &rerr) || rerr.Kind != KindPermissionDenied {
		t.Fatalf("err = %v, want permission-denied", err)
	}
	if c.Listening() {
		t.Fatal("listening after failed start")
	}
}

func TestMockRecognizerRoundTripsText(t *testing.T) {
	c := NewInputController(NewMockRecognizer(), "en-IN")

	var finals atomic.Int32
	var gotText atomic.Value
	if err := c.Start(context.Background(), InputHandlers{
		OnFinal: func(text string, _ float64) {
			gotText.Store(text)
			finals.Add(1)
		},
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	for _, chunk := range []string{"how ", "much ", "is ", "it"} {
		if err := c.Push(ctx, []byte(chunk), 16000); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	waitFor(t, "final", func() bool { return finals.Load() == 1 })
	if gotText.Load() != "how much is it" {
		t.Fatalf("text = %v", gotText.Load())
	}
}
