package call

import (
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusActive   Status = "active"
	StatusTakeover Status = "takeover"
	StatusEnded    Status = "ended"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAssistant  Role = "assistant"
	RoleHumanAgent Role = "human_agent"
)

// VoiceEngine identifies which synthesis path is serving the session.
type VoiceEngine string

const (
	EnginePrimary  VoiceEngine = "primary"
	EngineFallback VoiceEngine = "fallback"
)

// Message is a single transcript entry. Label carries the call-relative
// mm:ss stamp the dealership UI renders; ordering is by append position,
// never by parsing labels.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
}

// Context is what the assistant has worked out about the call so far.
// FunctionsCalled only ever grows.
type Context struct {
	Intent          string   `json:"intent,omitempty"`
	ModelDiscussed  string   `json:"model_discussed,omitempty"`
	FunctionsCalled []string `json:"functions_called,omitempty"`
}

// InvalidStateError reports an operation attempted against a session in an
// incompatible status. It indicates a coordination bug, not a transient
// condition; callers must not retry.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("call: %s not allowed while %s", e.Op, e.Status)
}

// Session is the mutable record for one live call. All mutation is funneled
// through the turn coordinator and the explicit takeover/end actions; the
// mutex exists so snapshot readers (monitoring, duration clock) observe a
// consistent view, not to arbitrate writers.
type Session struct {
	mu sync.Mutex

	id           string
	phone        string
	customerName string
	direction    string
	callType     string
	language     string

	status          Status
	startTime       time.Time
	endTime         time.Time
	durationSeconds int
	transcript      []Message
	aiConfidence    float64
	sentimentScore  float64
	context         Context
	voiceEngine     VoiceEngine
	handledBy       string
	takeoverReason  string
	outcome         string
	lastActivityAt  time.Time
}

// Snapshot is an immutable copy of a session for concurrent readers.
type Snapshot struct {
	ID              string      `json:"call_id"`
	Phone           string      `json:"phone"`
	CustomerName    string      `json:"customer_name"`
	Direction       string      `json:"direction"`
	Type            string      `json:"type"`
	Language        string      `json:"language"`
	Status          Status      `json:"status"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time,omitzero"`
	DurationSeconds int         `json:"duration_seconds"`
	Transcript      []Message   `json:"transcript"`
	AIConfidence    float64     `json:"ai_confidence"`
	SentimentScore  float64     `json:"sentiment_score"`
	Context         Context     `json:"context"`
	VoiceEngine     VoiceEngine `json:"voice_engine,omitempty"`
	HandledBy       string      `json:"handled_by"`
	TakeoverReason  string      `json:"takeover_reason,omitempty"`
	Outcome         string      `json:"outcome,omitempty"`
}

func New(id, phone, customerName, direction, callType, language string) *Session {
	return &Session{
		id:           id,
		phone:        phone,
		customerName: customerName,
		direction:    direction,
		callType:     callType,
		language:     language,
		status:       StatusIdle,
		aiConfidence: 1.0,
		handledBy:    "ai",
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Phone() string    { return s.phone }
func (s *Session) Language() string { return s.language }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

func (s *Session) VoiceEngine() VoiceEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceEngine
}

// SetVoiceEngine records which synthesis path the session settled on.
func (s *Session) SetVoiceEngine(engine VoiceEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceEngine = engine
}

// Activate moves an idle session to active, stamps the start time and
// appends the optional backend greeting.
func (s *Session) Activate(greeting string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return &InvalidStateError{Op: "activate", Status: s.status}
	}
	s.status = StatusActive
	s.startTime = time.Now()
	s.lastActivityAt = s.startTime
	if greeting != "" {
		s.appendLocked(RoleAssistant, greeting, s.startTime)
	}
	return nil
}

// AppendMessage appends one transcript entry. Only active and takeover
// sessions accept new entries.
func (s *Session) AppendMessage(role Role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive && s.status != StatusTakeover {
		return Message{}, &InvalidStateError{Op: "append message", Status: s.status}
	}
	now := time.Now()
	s.lastActivityAt = now
	return s.appendLocked(role, content, now), nil
}

// SyncTranscript reconciles the backend's transcript view into the local
// one. Alignment walks both sides in order matching on role and text, so a
// local line the backend never saw (appended ahead of a send that then
// failed) does not shift later entries out of register; backend entries with
// no local counterpart are appended. The local transcript is append-only: a
// shorter or diverging backend view never truncates or rewrites what was
// already shown.
func (s *Session) SyncTranscript(msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive && s.status != StatusTakeover {
		return &InvalidStateError{Op: "sync transcript", Status: s.status}
	}
	cursor := 0
	for _, m := range msgs {
		matched := false
		for cursor < len(s.transcript) {
			prev := s.transcript[cursor]
			cursor++
			if prev.Role == m.Role && prev.Content == m.Content {
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		s.appendLocked(m.Role, m.Content, ts)
		cursor = len(s.transcript)
	}
	s.lastActivityAt = time.Now()
	return nil
}

func (s *Session) appendLocked(role Role, content string, ts time.Time) Message {
	m := Message{
		Role:      role,
		Content:   content,
		Timestamp: ts,
		Label:     elapsedLabel(ts.Sub(s.startTime)),
	}
	s.transcript = append(s.transcript, m)
	return m
}

// ApplyTelemetry replaces scalar telemetry and merges FunctionsCalled as a
// set union; the accumulated list never shrinks.
func (s *Session) ApplyTelemetry(confidence, sentiment float64, ctx Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive && s.status != StatusTakeover {
		return &InvalidStateError{Op: "apply telemetry", Status: s.status}
	}
	s.aiConfidence = confidence
	s.sentimentScore = sentiment
	if ctx.Intent != "" {
		s.context.Intent = ctx.Intent
	}
	if ctx.ModelDiscussed != "" {
		s.context.ModelDiscussed = ctx.ModelDiscussed
	}
	for _, fn := range ctx.FunctionsCalled {
		if fn == "" || containsString(s.context.FunctionsCalled, fn) {
			continue
		}
		s.context.FunctionsCalled = append(s.context.FunctionsCalled, fn)
	}
	s.lastActivityAt = time.Now()
	return nil
}

// RequestTakeover hands the call to a human agent. Idempotent once in
// takeover; the first reason wins.
func (s *Session) RequestTakeover(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusTakeover:
		return nil
	case StatusActive:
		s.status = StatusTakeover
		s.handledBy = "ai_then_human"
		s.takeoverReason = reason
		s.lastActivityAt = time.Now()
		return nil
	default:
		return &InvalidStateError{Op: "takeover", Status: s.status}
	}
}

// End is terminal. It is allowed from any non-ended status; repeat calls
// report InvalidStateError and leave the record untouched.
func (s *Session) End(outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return &InvalidStateError{Op: "end", Status: s.status}
	}
	now := time.Now()
	s.status = StatusEnded
	s.endTime = now
	s.outcome = outcome
	if !s.startTime.IsZero() {
		s.durationSeconds = int(now.Sub(s.startTime).Seconds())
	}
	s.lastActivityAt = now
	return nil
}

// Elapsed reports call age at the given instant; zero before activation.
func (s *Session) Elapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	if s.status == StatusEnded {
		return s.endTime.Sub(s.startTime)
	}
	d := now.Sub(s.startTime)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Session) TranscriptLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// LastMessage returns the newest transcript entry, if any.
func (s *Session) LastMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transcript) == 0 {
		return Message{}, false
	}
	return s.transcript[len(s.transcript)-1], true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := make([]Message, len(s.transcript))
	copy(transcript, s.transcript)
	functions := make([]string, len(s.context.FunctionsCalled))
	copy(functions, s.context.FunctionsCalled)
	return Snapshot{
		ID:              s.id,
		Phone:           s.phone,
		CustomerName:    s.customerName,
		Direction:       s.direction,
		Type:            s.callType,
		Language:        s.language,
		Status:          s.status,
		StartTime:       s.startTime,
		EndTime:         s.endTime,
		DurationSeconds: s.durationSeconds,
		Transcript:      transcript,
		AIConfidence:    s.aiConfidence,
		SentimentScore:  s.sentimentScore,
		Context: Context{
			Intent:          s.context.Intent,
			ModelDiscussed:  s.context.ModelDiscussed,
			FunctionsCalled: functions,
		},
		VoiceEngine:    s.voiceEngine,
		HandledBy:      s.handledBy,
		TakeoverReason: s.takeoverReason,
		Outcome:        s.outcome,
	}
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

func elapsedLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
