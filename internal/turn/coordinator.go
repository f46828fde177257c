// Package turn drives the conversation state machine for one live call:
// who holds the floor, which backend request is in flight, and which
// recognizer/synthesizer events still matter.
package turn

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/autocrm/dealervoice/internal/call"
	"github.com/autocrm/dealervoice/internal/crm"
	"github.com/autocrm/dealervoice/internal/observability"
	"github.com/autocrm/dealervoice/internal/protocol"
	"github.com/autocrm/dealervoice/internal/reliability"
	"github.com/autocrm/dealervoice/internal/voice"
)

const sendTimeout = 2 * time.Second

// Coordinator owns the per-call event loops. One backend request per call is
// in flight at any moment, and listening and speaking never overlap; both
// invariants are enforced here, on a single goroutine per call, so the rest
// of the system never needs to reason about races between them.
type Coordinator struct {
	sessions       *call.Manager
	backend        crm.Client
	recognizer     voice.Recognizer
	newOutput      func() *voice.OutputController
	metrics        *observability.Metrics
	tickInterval   time.Duration
	requestTimeout time.Duration
}

func NewCoordinator(
	sessions *call.Manager,
	backend crm.Client,
	recognizer voice.Recognizer,
	newOutput func() *voice.OutputController,
	metrics *observability.Metrics,
	tickInterval time.Duration,
	requestTimeout time.Duration,
) *Coordinator {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Coordinator{
		sessions:       sessions,
		backend:        backend,
		recognizer:     recognizer,
		newOutput:      newOutput,
		metrics:        metrics,
		tickInterval:   tickInterval,
		requestTimeout: requestTimeout,
	}
}

// StartCall registers a new call with the backend and builds the local
// session seeded with the backend greeting.
func (c *Coordinator) StartCall(ctx context.Context, params crm.StartParams) (*call.Session, error) {
	res, err := c.backend.StartCall(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("start call: %w", err)
	}

	direction := res.Call.Direction
	if direction == "" {
		direction = params.Direction
	}
	if direction == "" {
		direction = "inbound"
	}
	s := call.New(res.Call.CallID, params.Phone, params.CustomerName, direction, params.CallType, params.Language)
	if err := s.Activate(res.Greeting); err != nil {
		return nil, err
	}
	if err := c.sessions.Register(s); err != nil {
		return nil, err
	}
	c.metrics.ActiveCalls.Inc()
	c.metrics.CallEvents.WithLabelValues("started").Inc()
	log.Printf("turn: call %s started for %s", s.ID(), params.Phone)
	return s, nil
}

// EndCall tears the call down locally first, then tells the backend on a
// best-effort basis. The local session is always ended and deregistered even
// when the backend is unreachable.
func (c *Coordinator) EndCall(ctx context.Context, s *call.Session, outcome string) call.Snapshot {
	if outcome == "" {
		outcome = "completed"
	}
	if err := s.End(outcome); err == nil {
		c.metrics.ActiveCalls.Dec()
		c.metrics.CallEvents.WithLabelValues("ended").Inc()
	}
	c.sessions.Remove(s.ID())

	go func(id string) {
		endCtx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		if _, err := c.backend.EndCall(endCtx, id, outcome); err != nil {
			log.Printf("turn: backend end for call %s failed: %v", id, err)
		}
	}(s.ID())

	log.Printf("turn: call %s ended (%s)", s.ID(), outcome)
	return s.Snapshot()
}

// phase is where the floor is inside one turn. The session status says who
// owns the call (ai vs human vs over); the phase says what the pipeline is
// doing right now.
type phase int

const (
	phaseIdle phase = iota
	phaseListening
	phaseWaiting
	phaseSpeaking
)

// internal loop events, all stamped with the turn sequence that produced
// them so leftovers from an abandoned turn are recognizably stale.
type (
	recognitionPartialEvent struct {
		seq  uint64
		text string
	}
	recognitionFinalEvent struct {
		seq        uint64
		text       string
		confidence float64
	}
	recognitionErrorEvent struct {
		seq uint64
		err *voice.RecognitionError
	}
	listenEndedEvent struct {
		seq uint64
	}
	backendReplyEvent struct {
		seq    uint64
		reply  crm.Reply
		err    error
		sentAt time.Time
	}
	humanReplyEvent struct {
		reply crm.Reply
		err   error
	}
	takeoverResultEvent struct {
		reason string
		record crm.CallRecord
		err    error
	}
	speakingEndedEvent struct {
		seq uint64
	}
	speakFailedEvent struct {
		seq uint64
		err error
	}
)

// RunCall drives one established call until it ends or the connection goes
// away. inbound carries parsed client messages; outbound carries server
// events for the websocket writer.
func (c *Coordinator) RunCall(ctx context.Context, s *call.Session, inbound <-chan any, outbound chan<- any) error {
	loop := &callLoop{
		c:        c,
		s:        s,
		input:    voice.NewInputController(c.recognizer, s.Language()),
		output:   c.newOutput(),
		internal: make(chan any, 64),
		outbound: outbound,
	}
	return loop.run(ctx, inbound)
}

type callLoop struct {
	c        *Coordinator
	s        *call.Session
	input    *voice.InputController
	output   *voice.OutputController
	internal chan any
	outbound chan<- any

	seq     uint64
	phase   phase
	finalAt time.Time
}

func (l *callLoop) run(ctx context.Context, inbound <-chan any) error {
	clockCtx, cancelClock := context.WithCancel(ctx)
	defer cancelClock()
	clock := call.NewDurationClock(l.s, l.c.tickInterval)
	go clock.Run(clockCtx, func(elapsed time.Duration) {
		secs := int(elapsed.Seconds())
		l.send(protocol.DurationTick{
			Type:           protocol.TypeDurationTick,
			CallID:         l.s.ID(),
			ElapsedSeconds: secs,
			Label:          fmt.Sprintf("%02d:%02d", secs/60, secs%60),
		})
	})

	l.send(protocol.CallState{Type: protocol.TypeCallState, CallID: l.s.ID(), Status: string(l.s.Status())})
	for _, snap := range l.s.Snapshot().Transcript {
		l.sendTranscript(snap)
	}

	defer func() {
		l.input.Stop()
		l.output.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			l.teardown("disconnected")
			return nil
		case msg, ok := <-inbound:
			if !ok {
				l.teardown("disconnected")
				return nil
			}
			if done := l.handleClient(ctx, msg); done {
				return nil
			}
		case ev := <-l.internal:
			l.handleInternal(ctx, ev)
		}
	}
}

// teardown handles the connection dropping out from under a live call.
func (l *callLoop) teardown(outcome string) {
	l.seq++
	l.input.Stop()
	l.output.Stop()
	if st := l.s.Status(); st != call.StatusEnded {
		l.c.EndCall(context.Background(), l.s, outcome)
	}
}

func (l *callLoop) handleClient(ctx context.Context, msg any) (done bool) {
	switch m := msg.(type) {
	case protocol.ClientStartListening:
		l.startListening(ctx)
	case protocol.ClientStopListening:
		l.input.Stop()
	case protocol.ClientAudioChunk:
		l.pushAudio(ctx, m)
	case protocol.ClientTypedText:
		l.acceptUtterance(ctx, strings.TrimSpace(m.Text), 1.0, "typed")
	case protocol.ClientHumanText:
		l.humanText(ctx, strings.TrimSpace(m.Text))
	case protocol.ClientTakeover:
		l.requestTakeover(ctx, m.Reason)
	case protocol.ClientEndCall:
		l.seq++
		l.input.Stop()
		l.output.Stop()
		snap := l.c.EndCall(ctx, l.s, m.Outcome)
		l.send(protocol.CallEnded{
			Type:            protocol.TypeCallEnded,
			CallID:          l.s.ID(),
			Outcome:         snap.Outcome,
			DurationSeconds: snap.DurationSeconds,
		})
		return true
	}
	return false
}

func (l *callLoop) handleInternal(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case recognitionPartialEvent:
		if e.seq != l.seq {
			return
		}
		l.send(protocol.PartialSpeech{Type: protocol.TypePartialSpeech, CallID: l.s.ID(), Text: e.text})
	case recognitionFinalEvent:
		if e.seq != l.seq || l.phase != phaseListening {
			l.c.metrics.ObserveTurnIndicator("stale_result_dropped")
			return
		}
		l.phase = phaseIdle
		l.send(protocol.ListeningEnded{Type: protocol.TypeListeningEnded, CallID: l.s.ID(), Reason: "final"})
		l.acceptUtterance(ctx, e.text, e.confidence, "voice")
	case recognitionErrorEvent:
		if e.seq != l.seq || l.phase != phaseListening {
			return
		}
		l.phase = phaseIdle
		l.c.metrics.ProviderErrors.WithLabelValues("recognizer", string(e.err.Kind)).Inc()
		l.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    l.s.ID(),
			Code:      string(e.err.Kind),
			Source:    "voice_input",
			Retryable: reliability.IsRetryableRecognitionKind(string(e.err.Kind)),
			Detail:    e.err.Detail,
		})
		l.send(protocol.ListeningEnded{Type: protocol.TypeListeningEnded, CallID: l.s.ID(), Reason: "error"})
	case listenEndedEvent:
		if e.seq != l.seq || l.phase != phaseListening {
			return
		}
		l.phase = phaseIdle
		l.send(protocol.ListeningEnded{Type: protocol.TypeListeningEnded, CallID: l.s.ID(), Reason: "stopped"})
	case backendReplyEvent:
		l.backendReply(ctx, e)
	case humanReplyEvent:
		l.humanReply(e)
	case takeoverResultEvent:
		l.takeoverResult(e)
	case speakingEndedEvent:
		if e.seq != l.seq || l.phase != phaseSpeaking {
			return
		}
		l.phase = phaseIdle
		l.send(protocol.SpeakingEnded{Type: protocol.TypeSpeakingEnded, CallID: l.s.ID(), Reason: "completed"})
		if !l.finalAt.IsZero() {
			l.c.metrics.ObserveTurnStage("turn_total", time.Since(l.finalAt))
			l.finalAt = time.Time{}
		}
		l.c.metrics.TurnEvents.WithLabelValues("turn_completed").Inc()
	case speakFailedEvent:
		if e.seq != l.seq || l.phase != phaseSpeaking {
			return
		}
		l.phase = phaseIdle
		l.c.metrics.ProviderErrors.WithLabelValues("synthesizer", "synthesis_failed").Inc()
		l.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    l.s.ID(),
			Code:      "synthesis_failed",
			Source:    "voice_output",
			Retryable: false,
			Detail:    e.err.Error(),
		})
		l.send(protocol.SpeakingEnded{Type: protocol.TypeSpeakingEnded, CallID: l.s.ID(), Reason: "error"})
	}
}

func (l *callLoop) startListening(ctx context.Context) {
	if st := l.s.Status(); st != call.StatusActive && st != call.StatusTakeover {
		l.invalidState("start listening")
		return
	}
	switch l.phase {
	case phaseWaiting:
		l.invalidState("start listening")
		return
	case phaseListening:
		return
	case phaseSpeaking:
		// Barge-in: the customer talks over the assistant. Cut playback
		// before the microphone opens so the two never overlap.
		l.seq++
		l.output.Stop()
		l.phase = phaseIdle
		l.send(protocol.SpeakingEnded{Type: protocol.TypeSpeakingEnded, CallID: l.s.ID(), Reason: "interrupted"})
		l.c.metrics.ObserveTurnIndicator("barge_in")
	}

	l.seq++
	mySeq := l.seq
	err := l.input.Start(ctx, voice.InputHandlers{
		OnPartial: func(text string) {
			l.post(recognitionPartialEvent{seq: mySeq, text: text})
		},
		OnFinal: func(text string, confidence float64) {
			l.post(recognitionFinalEvent{seq: mySeq, text: text, confidence: confidence})
		},
		OnError: func(rerr *voice.RecognitionError) {
			l.post(recognitionErrorEvent{seq: mySeq, err: rerr})
		},
		OnEnd: func() {
			l.post(listenEndedEvent{seq: mySeq})
		},
	})
	if err != nil {
		var rerr *voice.RecognitionError
		if !errors.As(err, &rerr) {
			rerr = &voice.RecognitionError{Kind: voice.KindOther, Detail: err.Error()}
		}
		l.c.metrics.ProviderErrors.WithLabelValues("recognizer", string(rerr.Kind)).Inc()
		l.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    l.s.ID(),
			Code:      string(rerr.Kind),
			Source:    "voice_input",
			Retryable: reliability.IsRetryableRecognitionKind(string(rerr.Kind)),
			Detail:    rerr.Detail,
		})
		return
	}
	l.phase = phaseListening
	l.c.metrics.TurnEvents.WithLabelValues("listen_started").Inc()
	l.send(protocol.ListeningStarted{Type: protocol.TypeListeningStarted, CallID: l.s.ID()})
}

func (l *callLoop) pushAudio(ctx context.Context, m protocol.ClientAudioChunk) {
	if l.phase != phaseListening {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
	if err != nil {
		l.send(protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			CallID: l.s.ID(),
			Code:   "bad_audio_chunk",
			Source: "voice_input",
			Detail: err.Error(),
		})
		return
	}
	if err := l.input.Push(ctx, pcm, m.SampleRate); err != nil && !errors.Is(err, voice.ErrNotListening) {
		log.Printf("turn: push audio for call %s: %v", l.s.ID(), err)
	}
}

// acceptUtterance takes one finished customer utterance, from either the
// microphone or the keyboard, and dispatches it to the backend.
func (l *callLoop) acceptUtterance(ctx context.Context, text string, confidence float64, via string) {
	if text == "" {
		return
	}
	status := l.s.Status()
	if status != call.StatusActive && status != call.StatusTakeover {
		l.invalidState("send message")
		return
	}
	switch l.phase {
	case phaseWaiting:
		// One request in flight at a time; the client must wait.
		l.invalidState("send message")
		return
	case phaseListening:
		l.seq++
		l.input.Stop()
		l.phase = phaseIdle
		l.send(protocol.ListeningEnded{Type: protocol.TypeListeningEnded, CallID: l.s.ID(), Reason: "superseded"})
	case phaseSpeaking:
		l.seq++
		l.output.Stop()
		l.phase = phaseIdle
		l.send(protocol.SpeakingEnded{Type: protocol.TypeSpeakingEnded, CallID: l.s.ID(), Reason: "interrupted"})
	}

	if status == call.StatusTakeover {
		// Once a human holds the call the same input path carries the
		// agent's lines; nothing goes to the scripted assistant anymore.
		l.humanText(ctx, text)
		return
	}

	msg, err := l.s.AppendMessage(call.RoleCustomer, text)
	if err != nil {
		l.invalidState("send message")
		return
	}
	l.sendTranscript(msg)

	l.seq++
	mySeq := l.seq
	l.phase = phaseWaiting
	l.finalAt = time.Now()
	l.c.metrics.TurnEvents.WithLabelValues("utterance_" + via).Inc()

	sentAt := time.Now()
	l.c.metrics.ObserveTurnStage("capture_to_send", sentAt.Sub(l.finalAt))

	go func(callID, text string) {
		reqCtx, cancel := context.WithTimeout(ctx, l.c.requestTimeout)
		defer cancel()
		reply, err := l.c.backend.SendMessage(reqCtx, callID, text)
		l.post(backendReplyEvent{seq: mySeq, reply: reply, err: err, sentAt: sentAt})
	}(l.s.ID(), text)
}

func (l *callLoop) backendReply(ctx context.Context, e backendReplyEvent) {
	if e.seq != l.seq || l.phase != phaseWaiting {
		l.c.metrics.ObserveTurnIndicator("stale_response_dropped")
		l.c.metrics.TurnEvents.WithLabelValues("stale_response").Inc()
		return
	}
	replyAt := time.Now()
	l.c.metrics.ObserveTurnStage("send_to_response", replyAt.Sub(e.sentAt))
	if !l.finalAt.IsZero() {
		l.c.metrics.ObserveTurnLatency(replyAt.Sub(l.finalAt))
	}
	l.phase = phaseIdle

	if e.err != nil {
		l.backendError(e.err)
		return
	}

	if err := l.s.SyncTranscript(convertTranscript(e.reply.Call.Transcript)); err != nil {
		log.Printf("turn: sync transcript for call %s: %v", l.s.ID(), err)
	}
	if msg, ok := l.s.LastMessage(); ok && msg.Role != call.RoleCustomer {
		l.sendTranscript(msg)
	}

	telemetry := e.reply.Call.Context
	if err := l.s.ApplyTelemetry(e.reply.AIConfidence, e.reply.SentimentScore, call.Context{
		Intent:          telemetry.Intent,
		ModelDiscussed:  telemetry.ModelDiscussed,
		FunctionsCalled: telemetry.FunctionsCalled,
	}); err == nil {
		snap := l.s.Snapshot()
		l.send(protocol.TelemetryUpdate{
			Type:            protocol.TypeTelemetryUpdate,
			CallID:          l.s.ID(),
			AIConfidence:    snap.AIConfidence,
			SentimentScore:  snap.SentimentScore,
			Intent:          snap.Context.Intent,
			ModelDiscussed:  snap.Context.ModelDiscussed,
			FunctionsCalled: snap.Context.FunctionsCalled,
		})
	}

	if e.reply.Takeover {
		l.enterTakeover(e.reply.TakeoverReason)
	}
	l.speak(ctx, e.reply.Text, replyAt)
}

func (l *callLoop) backendError(err error) {
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Takeover {
			// The backend rejected the message because a human already holds
			// the call; surface it as a takeover, not a failure.
			l.enterTakeover("backend reported human handling")
			return
		}
		l.c.metrics.ProviderErrors.WithLabelValues("crm", apiErr.Code).Inc()
		l.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			CallID:    l.s.ID(),
			Code:      apiErr.Code,
			Source:    "crm",
			Retryable: reliability.IsRetryableHTTPStatus(apiErr.StatusCode),
			Detail:    apiErr.Message,
		})
		return
	}

	code := "crm_request_failed"
	retryable := false
	if errors.Is(err, crm.ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		code = "crm_unreachable"
		retryable = true
	}
	l.c.metrics.ProviderErrors.WithLabelValues("crm", code).Inc()
	l.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		CallID:    l.s.ID(),
		Code:      code,
		Source:    "crm",
		Retryable: retryable,
		Detail:    err.Error(),
	})
}

func (l *callLoop) speak(ctx context.Context, text string, replyAt time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.seq++
	mySeq := l.seq
	l.phase = phaseSpeaking

	go func() {
		started := false
		err := l.output.Speak(ctx, text, l.s.Language(), voice.OutputHandlers{
			OnAudio: func(clip voice.AudioClip, engine string) {
				started = true
				l.s.SetVoiceEngine(call.VoiceEngine(engine))
				if !replyAt.IsZero() {
					l.c.metrics.ObserveTurnStage("response_to_speaking", time.Since(replyAt))
				}
				l.send(protocol.SpeakingStarted{
					Type:   protocol.TypeSpeakingStarted,
					CallID: l.s.ID(),
					Engine: engine,
					Text:   text,
				})
				l.send(protocol.SpeakingAudio{
					Type:        protocol.TypeSpeakingAudio,
					CallID:      l.s.ID(),
					MIME:        clip.MIME,
					SampleRate:  clip.SampleRate,
					AudioBase64: base64.StdEncoding.EncodeToString(clip.Data),
					DurationMS:  clip.Duration.Milliseconds(),
				})
			},
			OnDone: func() {
				l.post(speakingEndedEvent{seq: mySeq})
			},
		})
		if err != nil {
			l.post(speakFailedEvent{seq: mySeq, err: err})
		} else if !started {
			// Sanitizer stripped the whole utterance; nothing was played.
			l.post(speakingEndedEvent{seq: mySeq})
		}
	}()
}

func (l *callLoop) requestTakeover(ctx context.Context, reason string) {
	status := l.s.Status()
	if status != call.StatusActive && status != call.StatusTakeover {
		l.invalidState("takeover")
		return
	}
	if reason == "" {
		reason = "manual takeover"
	}
	// Drop whatever turn was in flight; a human is taking the call.
	l.seq++
	l.input.Stop()
	l.output.Stop()
	if l.phase == phaseSpeaking {
		l.send(protocol.SpeakingEnded{Type: protocol.TypeSpeakingEnded, CallID: l.s.ID(), Reason: "interrupted"})
	}
	l.phase = phaseIdle

	go func(callID, reason string) {
		reqCtx, cancel := context.WithTimeout(ctx, l.c.requestTimeout)
		defer cancel()
		record, err := l.c.backend.RequestTakeover(reqCtx, callID, reason)
		l.post(takeoverResultEvent{reason: reason, record: record, err: err})
	}(l.s.ID(), reason)
}

func (l *callLoop) takeoverResult(e takeoverResultEvent) {
	if e.err != nil {
		l.backendError(e.err)
		return
	}
	if err := l.s.SyncTranscript(convertTranscript(e.record.Transcript)); err == nil {
		if msg, ok := l.s.LastMessage(); ok && msg.Role == call.RoleAssistant {
			l.sendTranscript(msg)
		}
	}
	l.enterTakeover(e.reason)
}

// enterTakeover applies the local transition and announces it; idempotent.
func (l *callLoop) enterTakeover(reason string) {
	wasTakeover := l.s.Status() == call.StatusTakeover
	if err := l.s.RequestTakeover(reason); err != nil {
		l.invalidState("takeover")
		return
	}
	if wasTakeover {
		return
	}
	l.c.metrics.CallEvents.WithLabelValues("takeover").Inc()
	log.Printf("turn: call %s handed to human agent: %s", l.s.ID(), reason)
	l.send(protocol.CallState{Type: protocol.TypeCallState, CallID: l.s.ID(), Status: string(call.StatusTakeover)})
	l.send(protocol.TakeoverStarted{Type: protocol.TypeTakeoverStarted, CallID: l.s.ID(), Reason: reason})
}

func (l *callLoop) humanText(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if l.s.Status() != call.StatusTakeover {
		l.invalidState("human message")
		return
	}
	msg, err := l.s.AppendMessage(call.RoleHumanAgent, text)
	if err != nil {
		l.invalidState("human message")
		return
	}
	l.sendTranscript(msg)

	go func(callID, text string) {
		reqCtx, cancel := context.WithTimeout(ctx, l.c.requestTimeout)
		defer cancel()
		reply, err := l.c.backend.SendHumanMessage(reqCtx, callID, text)
		l.post(humanReplyEvent{reply: reply, err: err})
	}(l.s.ID(), text)
}

func (l *callLoop) humanReply(e humanReplyEvent) {
	if e.err != nil {
		l.backendError(e.err)
		return
	}
	// Nothing is synthesized for human speech; just reconcile the record.
	if err := l.s.SyncTranscript(convertTranscript(e.reply.Call.Transcript)); err != nil {
		log.Printf("turn: sync transcript for call %s: %v", l.s.ID(), err)
	}
}

func (l *callLoop) invalidState(op string) {
	err := &call.InvalidStateError{Op: op, Status: l.s.Status()}
	l.c.metrics.TurnEvents.WithLabelValues("invalid_state").Inc()
	l.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		CallID:    l.s.ID(),
		Code:      "invalid_state",
		Source:    "turn",
		Retryable: false,
		Detail:    err.Error(),
	})
}

func (l *callLoop) sendTranscript(msg call.Message) {
	l.send(protocol.TranscriptEntry{
		Type:      protocol.TypeTranscriptEntry,
		CallID:    l.s.ID(),
		Role:      string(msg.Role),
		Text:      msg.Content,
		Label:     msg.Label,
		Timestamp: msg.Timestamp.UnixMilli(),
	})
}

// post delivers an internal event to the loop without ever blocking a
// provider callback.
func (l *callLoop) post(ev any) {
	select {
	case l.internal <- ev:
	default:
		l.c.metrics.ObserveTurnIndicator("internal_event_dropped")
	}
}

func (l *callLoop) send(msg any) {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case l.outbound <- msg:
	case <-timer.C:
		l.c.metrics.ObserveTurnIndicator("outbound_send_timeout")
	}
}

func convertTranscript(entries []crm.TranscriptEntry) []call.Message {
	out := make([]call.Message, 0, len(entries))
	for _, e := range entries {
		role := call.RoleCustomer
		switch e.Speaker {
		case "ai", "assistant":
			role = call.RoleAssistant
		case "human_agent", "human":
			role = call.RoleHumanAgent
		}
		out = append(out, call.Message{Role: role, Content: e.Text, Timestamp: e.Timestamp})
	}
	return out
}
