package crm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func startSimCall(t *testing.T, sim *Simulator) StartResult {
	t.Helper()
	res, err := sim.StartCall(context.Background(), StartParams{
		Phone:        "+919812345678",
		CustomerName: "Asha",
		CallType:     "sales",
		Language:     "en-IN",
	})
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	return res
}

func TestSimulatorStartCallGreets(t *testing.T) {
	sim := NewSimulator(nil)
	res := startSimCall(t, sim)

	if res.Call.CallID == "" {
		t.Fatal("no call id assigned")
	}
	if res.Greeting == "" || !strings.Contains(res.Greeting, "Asha") {
		t.Fatalf("greeting = %q, want personalised greeting", res.Greeting)
	}
	if len(res.Call.Transcript) != 1 || res.Call.Transcript[0].Speaker != "ai" {
		t.Fatalf("transcript = %+v, want single ai greeting", res.Call.Transcript)
	}
	if res.Call.Status != "active" {
		t.Fatalf("status = %q", res.Call.Status)
	}
	if res.Call.Direction != "inbound" {
		t.Fatalf("direction = %q, want inbound default", res.Call.Direction)
	}
}

func TestSimulatorOutboundDirection(t *testing.T) {
	sim := NewSimulator(nil)
	res, err := sim.StartCall(context.Background(), StartParams{
		Phone:        "+919812345678",
		CustomerName: "Asha",
		Direction:    "outbound",
		CallType:     "follow_up",
		Language:     "en-IN",
	})
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if res.Call.Direction != "outbound" {
		t.Fatalf("direction = %q, want outbound", res.Call.Direction)
	}
}

func TestSimulatorPricingIntent(t *testing.T) {
	sim := NewSimulator(nil)
	res := startSimCall(t, sim)

	reply, err := sim.SendMessage(context.Background(), res.Call.CallID, "What is the price of the Nexon?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Takeover {
		t.Fatal("pricing question triggered takeover")
	}
	if reply.Call.Context.Intent != "pricing" {
		t.Fatalf("intent = %q, want pricing", reply.Call.Context.Intent)
	}
	if reply.Call.Context.ModelDiscussed != "nexon" {
		t.Fatalf("model = %q, want nexon", reply.Call.Context.ModelDiscussed)
	}
	found := false
	for _, fn := range reply.Call.Context.FunctionsCalled {
		if fn == "get_price" {
			found = true
		}
	}
	if !found {
		t.Fatalf("functions = %v, want get_price recorded", reply.Call.Context.FunctionsCalled)
	}
	// greeting + customer + ai reply
	if len(reply.Call.Transcript) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(reply.Call.Transcript))
	}
}

func TestSimulatorFrustrationEscalates(t *testing.T) {
	sim := NewSimulator(nil)
	res := startSimCall(t, sim)
	ctx := context.Background()

	first, err := sim.SendMessage(ctx, res.Call.CallID, "This is terrible service")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.Takeover {
		t.Fatal("escalated on first complaint")
	}
	if first.SentimentScore >= 0 {
		t.Fatalf("sentiment = %v, want negative", first.SentimentScore)
	}

	second, err := sim.SendMessage(ctx, res.Call.CallID, "I am really angry, this is useless")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !second.Takeover {
		t.Fatal("second complaint did not escalate")
	}
	if second.Call.Status != "takeover" {
		t.Fatalf("status = %q, want takeover", second.Call.Status)
	}
	if !strings.Contains(second.Text, "connect you") {
		t.Fatalf("bridge line = %q", second.Text)
	}

	// Customer messages are rejected once a human holds the call.
	_, err = sim.SendMessage(ctx, res.Call.CallID, "hello?")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Takeover {
		t.Fatalf("post-takeover send err = %v, want takeover-flagged APIError", err)
	}

	// Human agent messages are accepted.
	human, err := sim.SendHumanMessage(ctx, res.Call.CallID, "Hi, this is Rajesh, how can I help?")
	if err != nil {
		t.Fatalf("human message: %v", err)
	}
	last := human.Call.Transcript[len(human.Call.Transcript)-1]
	if last.Speaker != "human_agent" {
		t.Fatalf("last speaker = %q, want human_agent", last.Speaker)
	}
	if human.Text != "" {
		t.Fatalf("human reply text = %q, want empty (nothing to synthesize)", human.Text)
	}
}

func TestSimulatorExplicitHumanRequest(t *testing.T) {
	sim := NewSimulator(nil)
	res := startSimCall(t, sim)

	reply, err := sim.SendMessage(context.Background(), res.Call.CallID, "I want to talk to a real person")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.Takeover || reply.TakeoverReason != "customer requested human agent" {
		t.Fatalf("reply = %+v, want immediate takeover", reply)
	}
}

func TestSimulatorManualTakeover(t *testing.T) {
	sim := NewSimulator(nil)
	res := startSimCall(t, sim)

	rec, err := sim.RequestTakeover(context.Background(), res.Call.CallID, "supervisor watching")
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if rec.Status != "takeover" || rec.HandledBy != "ai_then_human" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.TakeoverReason != "supervisor watching" {
		t.Fatalf("takeover reason = %q", rec.TakeoverReason)
	}
	last := rec.Transcript[len(rec.Transcript)-1]
	if !strings.Contains(last.Text, "connect you") {
		t.Fatalf("no bridge line appended: %q", last.Text)
	}

	// Idempotent: no second bridge line.
	again, err := sim.RequestTakeover(context.Background(), res.Call.CallID, "again")
	if err != nil {
		t.Fatalf("repeat takeover: %v", err)
	}
	if len(again.Transcript) != len(rec.Transcript) {
		t.Fatalf("repeat takeover appended a line")
	}
}

func TestSimulatorEndPersistsRedactedLog(t *testing.T) {
	store := NewMemoryLogStore()
	sim := NewSimulator(store)
	res := startSimCall(t, sim)
	ctx := context.Background()

	if _, err := sim.SendMessage(ctx, res.Call.CallID, "My card is 4111 1111 1111 1111"); err != nil {
		t.Fatalf("send: %v", err)
	}

	rec, err := sim.EndCall(ctx, res.Call.CallID, "completed")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if rec.Status != "ended" || rec.Outcome != "completed" {
		t.Fatalf("final record = %+v", rec)
	}
	if sim.ActiveCalls() != 0 {
		t.Fatalf("active calls = %d after end", sim.ActiveCalls())
	}

	logs, err := store.RecentCallLogs(ctx, 5)
	if err != nil {
		t.Fatalf("recent logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if strings.Contains(logs[0].Transcript, "4111") {
		t.Fatal("card number survived redaction")
	}
	if !strings.Contains(logs[0].Transcript, "[customer]") {
		t.Fatalf("transcript missing speaker labels: %q", logs[0].Transcript)
	}

	if _, err := sim.EndCall(ctx, res.Call.CallID, "completed"); err == nil {
		t.Fatal("second end succeeded")
	}
}

func TestSimulatorUnknownCall(t *testing.T) {
	sim := NewSimulator(nil)
	_, err := sim.SendMessage(context.Background(), "nope", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "call_not_found" {
		t.Fatalf("err = %v, want call_not_found APIError", err)
	}
}
