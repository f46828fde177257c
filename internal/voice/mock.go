package voice

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockRecognizer treats every pushed chunk as text. It exists for demos and
// tests that drive the pipeline without a microphone: push UTF-8 bytes, get
// them back as a final transcript once enough chunks arrive or Close is
// called on the feed.
type MockRecognizer struct{}

func NewMockRecognizer() *MockRecognizer { return &MockRecognizer{} }

func (r *MockRecognizer) Start(_ context.Context, _ string) (RecognitionSession, error) {
	return &mockRecognitionSession{events: make(chan RecognitionEvent, 64)}, nil
}

type mockRecognitionSession struct {
	mu     sync.Mutex
	events chan RecognitionEvent
	buf    strings.Builder
	chunks int
	closed bool
}

func (s *mockRecognitionSession) Push(_ context.Context, pcm []byte, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.chunks++
	s.buf.Write(pcm)
	s.events <- RecognitionEvent{Type: RecognitionPartial, Text: s.buf.String()}
	if s.chunks%4 == 0 {
		text := strings.TrimSpace(s.buf.String())
		if text == "" {
			s.events <- RecognitionEvent{Type: RecognitionFailed, Err: &RecognitionError{Kind: KindNoSpeech}}
		} else {
			s.events <- RecognitionEvent{Type: RecognitionFinal, Text: text, Confidence: 0.7}
		}
	}
	return nil
}

func (s *mockRecognitionSession) Events() <-chan RecognitionEvent { return s.events }

func (s *mockRecognitionSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// scriptedRecognizer replays a fixed event sequence; test helper.
type scriptedRecognizer struct {
	mu      sync.Mutex
	scripts [][]RecognitionEvent
	starts  int
	delay   time.Duration
	err     error
}

func (r *scriptedRecognizer) Start(_ context.Context, _ string) (RecognitionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var script []RecognitionEvent
	if r.starts < len(r.scripts) {
		script = r.scripts[r.starts]
	}
	r.starts++

	s := &scriptedSession{events: make(chan RecognitionEvent, len(script)+1)}
	delay := r.delay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		for _, ev := range script {
			s.send(ev)
		}
	}()
	return s, nil
}

type scriptedSession struct {
	mu     sync.Mutex
	events chan RecognitionEvent
	closed bool
}

func (s *scriptedSession) send(ev RecognitionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

func (s *scriptedSession) Push(_ context.Context, _ []byte, _ int) error { return nil }

func (s *scriptedSession) Events() <-chan RecognitionEvent { return s.events }

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// stubSynthesizer counts calls and fails on demand; test helper.
type stubSynthesizer struct {
	mu        sync.Mutex
	name      string
	probeErr  error
	synthErr  error
	failCount int
	probes    int
	synths    int
	duration  time.Duration
}

func (s *stubSynthesizer) Name() string { return s.name }

func (s *stubSynthesizer) Probe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return s.probeErr
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text, _ string) (AudioClip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synths++
	if s.synthErr != nil && (s.failCount == 0 || s.synths <= s.failCount) {
		return AudioClip{}, s.synthErr
	}
	dur := s.duration
	if dur == 0 {
		dur = 5 * time.Millisecond
	}
	return AudioClip{Data: []byte(text), MIME: "audio/pcm", SampleRate: 16000, Duration: dur}, nil
}
