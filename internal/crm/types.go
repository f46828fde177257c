// Package crm talks to the dealership Call API: the backend that owns call
// records, runs the sales agent and decides when a human should take over.
// It ships two implementations, an HTTP client for a real deployment and an
// in-process simulator for demos and tests.
package crm

import (
	"fmt"
	"time"
)

// TranscriptEntry is a transcript line as the Call API represents it.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallContext is the agent's working understanding of the call.
type CallContext struct {
	Intent          string   `json:"intent,omitempty"`
	ModelDiscussed  string   `json:"model_discussed,omitempty"`
	FunctionsCalled []string `json:"functions_called,omitempty"`
}

// CallRecord is the backend's view of one call.
type CallRecord struct {
	CallID          string            `json:"call_id"`
	Phone           string            `json:"phone"`
	CustomerName    string            `json:"customer_name"`
	Direction       string            `json:"direction,omitempty"`
	Status          string            `json:"status"`
	StartTime       time.Time         `json:"start_time"`
	DurationSeconds int               `json:"duration_seconds"`
	Transcript      []TranscriptEntry `json:"transcript"`
	AIConfidence    float64           `json:"ai_confidence"`
	SentimentScore  float64           `json:"sentiment_score"`
	Context         CallContext       `json:"context"`
	HandledBy       string            `json:"handled_by"`
	TakeoverReason  string            `json:"takeover_reason,omitempty"`
	Outcome         string            `json:"outcome,omitempty"`
}

// StartParams identifies the caller for a new call.
type StartParams struct {
	Phone        string `json:"phone"`
	CustomerName string `json:"customer_name"`
	Direction    string `json:"direction"`
	CallType     string `json:"call_type"`
	Language     string `json:"language"`
}

// StartResult is the backend's answer to starting a call: the fresh record
// plus the greeting line the assistant should speak first.
type StartResult struct {
	Call     CallRecord `json:"call"`
	Greeting string     `json:"greeting"`
}

// Reply is the backend's answer to a customer or human-agent message.
type Reply struct {
	Call           CallRecord `json:"call"`
	Text           string     `json:"response"`
	AIConfidence   float64    `json:"ai_confidence"`
	SentimentScore float64    `json:"sentiment_score"`
	Takeover       bool       `json:"takeover"`
	TakeoverReason string     `json:"takeover_reason,omitempty"`
}

// APIError is a structured failure from the Call API. Takeover marks errors
// raised because the call has been handed to a human agent; the orchestrator
// routes those differently from plain failures.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Takeover   bool   `json:"takeover,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("crm: %s (%s)", e.Message, e.Code)
	}
	return "crm: " + e.Message
}
