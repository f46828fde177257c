package crm

import (
	"context"
	"sync"
	"time"
)

// CallLog is the archived form of an ended call. Transcript text is PII
// redacted before it reaches a store.
type CallLog struct {
	CallID          string
	Phone           string
	CustomerName    string
	Outcome         string
	DurationSeconds int
	EndedAt         time.Time
	Transcript      string
}

// LogStore archives ended calls for the simulator.
type LogStore interface {
	SaveCallLog(ctx context.Context, log CallLog) error
	RecentCallLogs(ctx context.Context, limit int) ([]CallLog, error)
}

// MemoryLogStore keeps call logs in memory, newest first.
type MemoryLogStore struct {
	mu   sync.Mutex
	logs []CallLog
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) SaveCallLog(ctx context.Context, log CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append([]CallLog{log}, s.logs...)
	return nil
}

func (s *MemoryLogStore) RecentCallLogs(ctx context.Context, limit int) ([]CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.logs) {
		limit = len(s.logs)
	}
	out := make([]CallLog, limit)
	copy(out, s.logs[:limit])
	return out, nil
}
