package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrAlreadySpeaking = errors.New("voice: already speaking")

// OutputHandlers observe one utterance. OnAudio delivers the synthesized
// clip; OnDone fires exactly once when playback ran its course or was
// stopped.
type OutputHandlers struct {
	OnAudio func(clip AudioClip, engine string)
	OnDone  func()
}

// OutputController speaks one utterance at a time through a primary engine
// with a fallback behind it. Engine choice is probed once and cached for the
// life of the controller; a synthesis failure on the primary also flips the
// cache so later utterances go straight to the fallback.
type OutputController struct {
	primary  Synthesizer
	fallback Synthesizer
	probeTO  time.Duration

	mu       sync.Mutex
	selected Synthesizer
	engine   string
	speaking bool
	timer    *time.Timer
	doneOnce *sync.Once
	onDone   func()
}

func NewOutputController(primary, fallback Synthesizer) *OutputController {
	return &OutputController{
		primary:  primary,
		fallback: fallback,
		probeTO:  3 * time.Second,
	}
}

// Engine reports which synthesis path is cached: "primary", "fallback" or
// "" before the first utterance.
func (c *OutputController) Engine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

func (c *OutputController) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak synthesizes and "plays" the text, emitting OnDone when the clip's
// duration elapses. Speaking while already speaking is a contract violation.
// Empty or markup-only text completes immediately without synthesis.
func (c *OutputController) Speak(ctx context.Context, text, language string, h OutputHandlers) error {
	clean := sanitizeSpeechText(text)
	if clean == "" {
		if h.OnDone != nil {
			h.OnDone()
		}
		return nil
	}

	c.mu.Lock()
	if c.speaking {
		c.mu.Unlock()
		return ErrAlreadySpeaking
	}
	c.speaking = true
	c.mu.Unlock()

	engine, name := c.selectEngine(ctx)

	clip, err := engine.Synthesize(ctx, clean, language)
	if err != nil && name == "primary" {
		log.Printf("voice: primary synth %s failed, switching to fallback: %v", engine.Name(), err)
		c.mu.Lock()
		c.selected = c.fallback
		c.engine = "fallback"
		c.mu.Unlock()
		engine, name = c.fallback, "fallback"
		clip, err = engine.Synthesize(ctx, clean, language)
	}
	if err != nil {
		c.mu.Lock()
		c.speaking = false
		c.mu.Unlock()
		return fmt.Errorf("synthesize (%s): %w", engine.Name(), err)
	}

	once := &sync.Once{}
	c.mu.Lock()
	c.doneOnce = once
	c.onDone = h.OnDone
	c.timer = time.AfterFunc(clip.Duration, func() { c.finish(once) })
	c.mu.Unlock()

	if h.OnAudio != nil {
		h.OnAudio(clip, name)
	}
	return nil
}

// Stop interrupts playback, if any. Idempotent; OnDone for the interrupted
// utterance still fires exactly once.
func (c *OutputController) Stop() {
	c.mu.Lock()
	once := c.doneOnce
	timer := c.timer
	c.mu.Unlock()

	if once == nil {
		return
	}
	if timer != nil {
		timer.Stop()
	}
	c.finish(once)
}

func (c *OutputController) finish(once *sync.Once) {
	c.mu.Lock()
	var done func()
	if c.doneOnce == once {
		c.speaking = false
		c.timer = nil
		c.doneOnce = nil
		done = c.onDone
		c.onDone = nil
	}
	c.mu.Unlock()

	once.Do(func() {
		if done != nil {
			done()
		}
	})
}

func (c *OutputController) selectEngine(ctx context.Context) (Synthesizer, string) {
	c.mu.Lock()
	if c.selected != nil {
		engine, name := c.selected, c.engine
		c.mu.Unlock()
		return engine, name
	}
	c.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTO)
	err := c.primary.Probe(probeCtx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected != nil {
		return c.selected, c.engine
	}
	if err != nil {
		log.Printf("voice: primary synth %s unavailable, using %s: %v", c.primary.Name(), c.fallback.Name(), err)
		c.selected = c.fallback
		c.engine = "fallback"
	} else {
		c.selected = c.primary
		c.engine = "primary"
	}
	return c.selected, c.engine
}
