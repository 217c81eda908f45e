package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweeper purges expired entries from a Set on a cron schedule.
type Sweeper struct {
	set      *Set
	schedule cron.Schedule
	log      *slog.Logger
	now      func() time.Time
}

// NewSweeper parses expr and returns a Sweeper for set.
func NewSweeper(set *Set, expr string, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("revocation: parse sweep schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{set: set, schedule: sched, log: logger, now: time.Now}, nil
}

// Run sweeps at every scheduled time until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Sweep()
			timer.Reset(s.untilNext())
		}
	}
}

// Sweep purges expired entries now.
func (s *Sweeper) Sweep() int {
	n := s.set.Purge(s.now())
	if n > 0 {
		s.log.Debug("purged expired revoked tokens", "count", n, "remaining", s.set.Len())
	}
	return n
}

// untilNext returns the duration until the next scheduled sweep.
func (s *Sweeper) untilNext() time.Duration {
	now := s.now()
	d := s.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
