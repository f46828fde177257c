package call

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("call: session not found")
var ErrAlreadyRegistered = errors.New("call: session already registered")

// ExpireFunc is invoked outside the registry lock for each session the
// janitor evicts.
type ExpireFunc func(s *Session)

// Manager is the registry of live sessions. Session identity comes from the
// backend, so callers register sessions they built rather than asking the
// manager to mint IDs.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	inactivityTimeout time.Duration
	onExpire          ExpireFunc
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

// OnExpire registers the janitor eviction hook. Call before StartJanitor.
func (m *Manager) OnExpire(fn ExpireFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

func (m *Manager) Register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return ErrAlreadyRegistered
	}
	m.sessions[s.ID()] = s
	return nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops the session from the registry without touching its status.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if st := s.Status(); st == StatusActive || st == StatusTakeover {
			n++
		}
	}
	return n
}

// Snapshots returns copies of every registered session for monitoring reads.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

// StartJanitor spawns the sweeper that evicts sessions idle longer than the
// inactivity timeout. Ended sessions are swept on the same cadence so the
// registry does not accumulate finished calls. Returns immediately; the
// sweeper runs until ctx is cancelled.
func (m *Manager) StartJanitor(ctx context.Context) {
	interval := m.inactivityTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sweep(now)
			}
		}
	}()
}

func (m *Manager) sweep(now time.Time) {
	var expired []*Session
	m.mu.Lock()
	hook := m.onExpire
	for id, s := range m.sessions {
		last := s.lastActivity()
		if last.IsZero() {
			continue
		}
		if now.Sub(last) >= m.inactivityTimeout {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	if hook == nil {
		return
	}
	for _, s := range expired {
		hook(s)
	}
}
