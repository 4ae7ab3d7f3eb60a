package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Sweeper periodically discards sessions that have been idle for too long.
type Sweeper struct {
	log      *zap.Logger
	sessions *SessionManager
	clock    clockwork.Clock
	interval time.Duration
	idle     func() time.Duration
	done     chan struct{}
}

// NewSweeper checks every interval. idle is read on each pass so it follows config reloads.
func NewSweeper(log *zap.Logger, sessions *SessionManager, clock clockwork.Clock, interval time.Duration, idle func() time.Duration) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		log:      log.With(zap.String("component", "sweeper")),
		sessions: sessions,
		clock:    clock,
		interval: interval,
		idle:     idle,
		done:     make(chan struct{}),
	}
}

// Start runs the sweeper in a goroutine until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting idle session sweeper...", zap.Duration("interval", s.interval))
	go func() {
		defer close(s.done)
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweep()
			}
		}
	}()
}

// Done is closed once the sweeper goroutine has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

func (s *Sweeper) sweep() {
	idle := s.idle()
	s.log.Debug("Running idle session sweep", zap.Duration("idle_timeout", idle))
	if n := s.sessions.DiscardIdle(idle); n > 0 {
		s.log.Info("Discarded idle sessions", zap.Int("count", n), zap.Int("remaining", s.sessions.Len()))
	}
}
