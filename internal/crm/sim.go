package crm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autocrm/dealervoice/internal/policy"
)

const takeoverBridgeLine = "I completely understand. Let me connect you with one of our senior executives right away. Please stay on the line."

// Simulator is an in-process Call API with a scripted dealership sales
// agent. It exists so the orchestrator can run end to end without a real
// backend deployment; demos and most tests run against it.
type Simulator struct {
	mu    sync.Mutex
	calls map[string]*simCall
	store LogStore
}

type simCall struct {
	record      CallRecord
	frustration int
	unknowns    int
}

func NewSimulator(store LogStore) *Simulator {
	if store == nil {
		store = NewMemoryLogStore()
	}
	return &Simulator{
		calls: make(map[string]*simCall),
		store: store,
	}
}

func (s *Simulator) StartCall(ctx context.Context, params StartParams) (StartResult, error) {
	name := strings.TrimSpace(params.CustomerName)
	if name == "" {
		name = "there"
	}
	greeting := fmt.Sprintf("Namaste %s! Thank you for calling Sharma Motors. I'm Priya, your sales assistant. How can I help you today?", name)

	direction := strings.TrimSpace(params.Direction)
	if direction == "" {
		direction = "inbound"
	}

	now := time.Now()
	record := CallRecord{
		CallID:       uuid.NewString(),
		Phone:        params.Phone,
		CustomerName: params.CustomerName,
		Direction:    direction,
		Status:       "active",
		StartTime:    now,
		AIConfidence: 1.0,
		HandledBy:    "ai",
		Transcript: []TranscriptEntry{
			{Speaker: "ai", Text: greeting, Timestamp: now},
		},
	}

	s.mu.Lock()
	s.calls[record.CallID] = &simCall{record: record}
	s.mu.Unlock()

	return StartResult{Call: cloneRecord(record), Greeting: greeting}, nil
}

func (s *Simulator) SendMessage(ctx context.Context, callID, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return Reply{}, notFound(callID)
	}
	if c.record.Status == "takeover" {
		return Reply{}, &APIError{
			StatusCode: http.StatusConflict,
			Code:       "human_handling",
			Message:    "call is being handled by a human agent",
			Takeover:   true,
		}
	}

	now := time.Now()
	c.record.Transcript = append(c.record.Transcript, TranscriptEntry{
		Speaker: "customer", Text: text, Timestamp: now,
	})

	reply, takeover, reason := c.respond(text)
	c.record.Transcript = append(c.record.Transcript, TranscriptEntry{
		Speaker: "ai", Text: reply, Timestamp: time.Now(),
	})
	if takeover {
		c.record.Status = "takeover"
		c.record.HandledBy = "ai_then_human"
		c.record.TakeoverReason = reason
	}

	return Reply{
		Call:           cloneRecord(c.record),
		Text:           reply,
		AIConfidence:   c.record.AIConfidence,
		SentimentScore: c.record.SentimentScore,
		Takeover:       takeover,
		TakeoverReason: reason,
	}, nil
}

func (s *Simulator) SendHumanMessage(ctx context.Context, callID, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return Reply{}, notFound(callID)
	}
	if c.record.Status != "takeover" {
		return Reply{}, &APIError{
			StatusCode: http.StatusConflict,
			Code:       "not_in_takeover",
			Message:    "call is not being handled by a human agent",
		}
	}
	c.record.Transcript = append(c.record.Transcript, TranscriptEntry{
		Speaker: "human_agent", Text: text, Timestamp: time.Now(),
	})
	return Reply{Call: cloneRecord(c.record)}, nil
}

func (s *Simulator) RequestTakeover(ctx context.Context, callID, reason string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return CallRecord{}, notFound(callID)
	}
	if c.record.Status == "ended" {
		return CallRecord{}, &APIError{
			StatusCode: http.StatusConflict,
			Code:       "call_ended",
			Message:    "call already ended",
		}
	}
	if c.record.Status != "takeover" {
		c.record.Status = "takeover"
		c.record.HandledBy = "ai_then_human"
		c.record.TakeoverReason = reason
		c.record.Transcript = append(c.record.Transcript, TranscriptEntry{
			Speaker: "ai", Text: takeoverBridgeLine, Timestamp: time.Now(),
		})
	}
	return cloneRecord(c.record), nil
}

func (s *Simulator) EndCall(ctx context.Context, callID, outcome string) (CallRecord, error) {
	s.mu.Lock()
	c, ok := s.calls[callID]
	if !ok {
		s.mu.Unlock()
		return CallRecord{}, notFound(callID)
	}
	delete(s.calls, callID)

	now := time.Now()
	c.record.Status = "ended"
	c.record.Outcome = outcome
	c.record.DurationSeconds = int(now.Sub(c.record.StartTime).Seconds())
	final := cloneRecord(c.record)
	s.mu.Unlock()

	if err := s.store.SaveCallLog(ctx, buildCallLog(final, now)); err != nil {
		return final, fmt.Errorf("persist call log: %w", err)
	}
	return final, nil
}

// ActiveCalls reports how many calls the simulator is still tracking.
func (s *Simulator) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// respond is the scripted sales agent. Keyword intents stand in for a real
// model; the shapes of the answers (telemetry drift, function names,
// escalation) mirror what the production agent produces.
func (c *simCall) respond(text string) (reply string, takeover bool, reason string) {
	lower := strings.ToLower(text)

	if containsAny(lower, "human", "manager", "real person", "executive") {
		c.record.SentimentScore -= 0.2
		return takeoverBridgeLine, true, "customer requested human agent"
	}

	if containsAny(lower, "angry", "terrible", "worst", "useless", "complaint", "refund") {
		c.frustration++
		c.record.SentimentScore -= 0.35
		if c.record.SentimentScore < -1 {
			c.record.SentimentScore = -1
		}
		c.record.Context.Intent = "complaint"
		if c.frustration >= 2 {
			return takeoverBridgeLine, true, "customer frustration detected"
		}
		return "I'm really sorry to hear that. Could you tell me a little more so I can make this right?", false, ""
	}

	switch {
	case containsAny(lower, "price", "cost", "emi", "finance", "loan"):
		c.record.Context.Intent = "pricing"
		c.record.Context.ModelDiscussed = modelIn(lower, c.record.Context.ModelDiscussed)
		c.addFunction("get_price")
		c.addFunction("calculate_emi")
		c.record.AIConfidence = 0.95
		c.record.SentimentScore += 0.1
		return "The on-road price starts at 8.5 lakhs, and with our festive finance offer the EMI works out to about 14,500 per month. Would you like me to send a detailed quote?", false, ""

	case containsAny(lower, "test drive", "test-drive", "drive"):
		c.record.Context.Intent = "test_drive"
		c.record.Context.ModelDiscussed = modelIn(lower, c.record.Context.ModelDiscussed)
		c.addFunction("check_inventory")
		c.addFunction("book_test_drive")
		c.record.AIConfidence = 0.93
		c.record.SentimentScore += 0.15
		return "Great choice! We have slots tomorrow at 11 AM and 4 PM. Which works better for you?", false, ""

	case containsAny(lower, "service", "servicing", "repair"):
		c.record.Context.Intent = "service"
		c.addFunction("book_service")
		c.record.AIConfidence = 0.9
		return "I can book a service appointment for you. Our workshop has openings this week; what day suits you?", false, ""

	case containsAny(lower, "suv", "sedan", "hatchback", "nexon", "creta", "swift"):
		c.record.Context.Intent = "inquiry"
		c.record.Context.ModelDiscussed = modelIn(lower, c.record.Context.ModelDiscussed)
		c.addFunction("check_inventory")
		c.record.AIConfidence = 0.92
		c.record.SentimentScore += 0.05
		return "We have that in stock in three variants. Would you like to hear about the features, or shall I arrange a test drive?", false, ""

	default:
		c.unknowns++
		c.record.AIConfidence = 0.95 - 0.1*float64(c.unknowns)
		if c.record.AIConfidence < 0.5 {
			c.record.AIConfidence = 0.5
		}
		return "Could you tell me a bit more about what you're looking for? We have new cars, exchanges and servicing.", false, ""
	}
}

func (c *simCall) addFunction(name string) {
	for _, fn := range c.record.Context.FunctionsCalled {
		if fn == name {
			return
		}
	}
	c.record.Context.FunctionsCalled = append(c.record.Context.FunctionsCalled, name)
}

func modelIn(lower, current string) string {
	for _, m := range []string{"nexon", "creta", "swift", "suv", "sedan", "hatchback"} {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return current
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func notFound(callID string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		Code:       "call_not_found",
		Message:    "no active call " + callID,
	}
}

func cloneRecord(r CallRecord) CallRecord {
	out := r
	out.Transcript = make([]TranscriptEntry, len(r.Transcript))
	copy(out.Transcript, r.Transcript)
	out.Context.FunctionsCalled = append([]string(nil), r.Context.FunctionsCalled...)
	return out
}

func buildCallLog(r CallRecord, endedAt time.Time) CallLog {
	var b strings.Builder
	for _, e := range r.Transcript {
		line, _ := policy.RedactPII(e.Text)
		fmt.Fprintf(&b, "[%s] %s\n", e.Speaker, line)
	}
	return CallLog{
		CallID:          r.CallID,
		Phone:           r.Phone,
		CustomerName:    r.CustomerName,
		Outcome:         r.Outcome,
		DurationSeconds: r.DurationSeconds,
		EndedAt:         endedAt,
		Transcript:      b.String(),
	}
}
