package call

import (
	"context"
	"time"
)

// DurationClock pushes elapsed-time updates for one session at a fixed
// cadence. It is display plumbing only: the authoritative duration is
// computed from the session timestamps, never by counting ticks.
type DurationClock struct {
	session  *Session
	interval time.Duration
}

func NewDurationClock(s *Session, interval time.Duration) *DurationClock {
	return &DurationClock{session: s, interval: interval}
}

// Run invokes emit once per interval while the session is active or in
// takeover, then returns. It also returns when ctx is cancelled. Emission
// stops on the first tick observed after the session ended, so a late tick
// never reports time past the end of the call.
func (c *DurationClock) Run(ctx context.Context, emit func(elapsed time.Duration)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			switch c.session.Status() {
			case StatusActive, StatusTakeover:
				emit(c.session.Elapsed(now))
			default:
				return
			}
		}
	}
}
