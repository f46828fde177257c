package call

import (
	"context"
	"testing"
	"time"
)

func TestManagerRegisterAndGet(t *testing.T) {
	m := NewManager(time.Minute)
	s := newTestSession()
	if err := m.Register(s); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(s); err != ErrAlreadyRegistered {
		t.Fatalf("duplicate register err = %v, want ErrAlreadyRegistered", err)
	}
	got, err := m.Get("call-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != s {
		t.Fatal("get returned a different session")
	}
	if _, err := m.Get("missing"); err != ErrNotFound {
		t.Fatalf("missing get err = %v, want ErrNotFound", err)
	}
}

func TestManagerActiveCountExcludesIdleAndEnded(t *testing.T) {
	m := NewManager(time.Minute)

	idle := New("idle", "+910000000001", "A", "inbound", "sales", "en-IN")
	active := New("active", "+910000000002", "B", "inbound", "sales", "en-IN")
	taken := New("taken", "+910000000003", "C", "inbound", "service", "en-IN")
	done := New("done", "+910000000004", "D", "inbound", "sales", "en-IN")

	for _, s := range []*Session{idle, active, taken, done} {
		if err := m.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.ID(), err)
		}
	}
	for _, s := range []*Session{active, taken, done} {
		if err := s.Activate(""); err != nil {
			t.Fatalf("activate %s: %v", s.ID(), err)
		}
	}
	if err := taken.RequestTakeover("escalated"); err != nil {
		t.Fatalf("takeover: %v", err)
	}
	if err := done.End("completed"); err != nil {
		t.Fatalf("end: %v", err)
	}

	if got := m.ActiveCount(); got != 2 {
		t.Fatalf("active count = %d, want 2", got)
	}
	if got := len(m.Snapshots()); got != 4 {
		t.Fatalf("snapshots = %d, want 4", got)
	}
}

func TestManagerSweepEvictsStaleSessions(t *testing.T) {
	m := NewManager(30 * time.Second)

	var expired []string
	m.OnExpire(func(s *Session) { expired = append(expired, s.ID()) })

	stale := newTestSession()
	if err := stale.Activate(""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := m.Register(stale); err != nil {
		t.Fatalf("register: %v", err)
	}

	fresh := New("call-2", "+919800000000", "Ravi", "inbound", "sales", "en-IN")
	if err := fresh.Activate(""); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := m.Register(fresh); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Stale session last touched now; sweep from one minute in the future
	// evicts it, while a session touched at that future instant stays.
	future := time.Now().Add(time.Minute)
	fresh.mu.Lock()
	fresh.lastActivityAt = future
	fresh.mu.Unlock()

	m.sweep(future)

	if len(expired) != 1 || expired[0] != "call-1" {
		t.Fatalf("expired = %v, want [call-1]", expired)
	}
	if _, err := m.Get("call-1"); err != ErrNotFound {
		t.Fatalf("stale session still registered: %v", err)
	}
	if _, err := m.Get("call-2"); err != nil {
		t.Fatalf("fresh session evicted: %v", err)
	}
}

func TestStartJanitorDoesNotBlockCaller(t *testing.T) {
	m := NewManager(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.StartJanitor(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartJanitor blocked its caller")
	}
}

func TestManagerSweepSkipsUnactivatedSessions(t *testing.T) {
	m := NewManager(time.Second)
	var expired int
	m.OnExpire(func(*Session) { expired++ })

	s := newTestSession()
	if err := m.Register(s); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.sweep(time.Now().Add(time.Hour))
	if expired != 0 {
		t.Fatalf("idle unactivated session evicted")
	}
}
