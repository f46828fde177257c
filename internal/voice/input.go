package voice

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAlreadyListening = errors.New("voice: already listening")
	ErrNotListening     = errors.New("voice: not listening")
)

// InputHandlers receive the outcome of one listen. OnEnd fires exactly once
// per listen, after any final result or error, whether the listen completed
// or was stopped.
type InputHandlers struct {
	OnPartial func(text string)
	OnFinal   func(text string, confidence float64)
	OnError   func(err *RecognitionError)
	OnEnd     func()
}

// InputController runs single-utterance listens against a recognizer. One
// listen at a time; a second Start while listening is a contract violation
// and fails with ErrAlreadyListening. Stop is safe to call at any time, any
// number of times.
type InputController struct {
	recognizer Recognizer
	language   string

	mu       sync.Mutex
	session  RecognitionSession
	cancel   context.CancelFunc
	endOnce  *sync.Once
	handlers InputHandlers
}

func NewInputController(r Recognizer, language string) *InputController {
	return &InputController{recognizer: r, language: language}
}

func (c *InputController) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Start opens a recognition session and consumes it until a final result,
// an error, or Stop. The utterance is single-shot: the first final result
// ends the listen.
func (c *InputController) Start(ctx context.Context, h InputHandlers) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyListening
	}

	listenCtx, cancel := context.WithCancel(ctx)
	session, err := c.recognizer.Start(listenCtx, c.language)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return err
	}
	c.session = session
	c.cancel = cancel
	c.endOnce = &sync.Once{}
	c.handlers = h
	c.mu.Unlock()

	go c.consume(session, h, c.endOnce)
	return nil
}

// Push forwards captured audio into the open listen.
func (c *InputController) Push(ctx context.Context, pcm []byte, sampleRate int) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return ErrNotListening
	}
	return session.Push(ctx, pcm, sampleRate)
}

// Stop abandons the current listen, if any. Idempotent; a listen that
// already finished is left alone.
func (c *InputController) Stop() {
	c.mu.Lock()
	session := c.session
	cancel := c.cancel
	once := c.endOnce
	h := c.handlers
	c.session = nil
	c.cancel = nil
	c.mu.Unlock()

	if session == nil {
		return
	}
	cancel()
	_ = session.Close()
	if once != nil {
		once.Do(func() {
			if h.OnEnd != nil {
				h.OnEnd()
			}
		})
	}
}

func (c *InputController) consume(session RecognitionSession, h InputHandlers, once *sync.Once) {
	finish := func(emit func()) {
		c.mu.Lock()
		if c.session == session {
			c.session = nil
			if c.cancel != nil {
				c.cancel()
				c.cancel = nil
			}
		}
		c.mu.Unlock()
		_ = session.Close()
		once.Do(func() {
			if emit != nil {
				emit()
			}
			if h.OnEnd != nil {
				h.OnEnd()
			}
		})
	}

	for ev := range session.Events() {
		switch ev.Type {
		case RecognitionPartial:
			if h.OnPartial != nil {
				h.OnPartial(ev.Text)
			}
		case RecognitionFinal:
			text, conf := ev.Text, ev.Confidence
			finish(func() {
				if h.OnFinal != nil {
					h.OnFinal(text, conf)
				}
			})
			return
		case RecognitionFailed:
			rerr := ev.Err
			if rerr == nil {
				rerr = &RecognitionError{Kind: KindOther}
			}
			finish(func() {
				if h.OnError != nil {
					h.OnError(rerr)
				}
			})
			return
		}
	}
	// Channel closed without a result: the session was torn down under us.
	finish(nil)
}
