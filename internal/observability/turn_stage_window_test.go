package observability

import "testing"

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe("send_to_response", 500)
	w.Observe("send_to_response", 700)
	w.Observe("send_to_response", 900)
	w.ObserveIndicator("stale_response_dropped")
	w.ObserveIndicator("stale_response_dropped")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "send_to_response" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "send_to_response")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 2500 {
		t.Fatalf("TargetP95MS = %.2f, want 2500", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "stale_response_dropped" {
		t.Fatalf("Indicators[0].Name = %q, want %q", snap.Indicators[0].Name, "stale_response_dropped")
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestTurnStageWindowWrapsRing(t *testing.T) {
	w := newTurnStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe("turn_total", float64(100*i))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if snap.Stages[0].Samples != 4 {
		t.Fatalf("Samples = %d, want 4 after wrap", snap.Stages[0].Samples)
	}
	if snap.Stages[0].LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", snap.Stages[0].LastMS)
	}
}
