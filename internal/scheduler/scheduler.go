package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/relayd/internal/events"
)

// HeartbeatType is the notification type of periodic heartbeats.
const HeartbeatType = "heartbeat"

// Config selects which periodic jobs run. A zero interval disables a job.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTopic    string
	SweepInterval     time.Duration
	// SweepJitter spreads sweeps of several instances sharing a redis store.
	SweepJitter time.Duration
}

// Scheduler runs the heartbeat and session sweep loops.
type Scheduler struct {
	cfg      Config
	pub      Publisher
	sessions Sweeper
	events   *events.Hub
	logger   *slog.Logger

	seq      atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Scheduler instance.
func New(cfg Config, pub Publisher, sessions Sweeper, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(32)
	}
	return &Scheduler{
		cfg:      cfg,
		pub:      pub,
		sessions: sessions,
		events:   hub,
		logger:   logger.With("component", "scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the enabled loops and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.HeartbeatInterval > 0 && s.pub == nil {
		return fmt.Errorf("heartbeat enabled without a publisher")
	}
	if s.cfg.SweepInterval > 0 && s.sessions == nil {
		return fmt.Errorf("session sweep enabled without a session service")
	}

	s.logger.Info("Starting scheduler",
		"heartbeat_interval", s.cfg.HeartbeatInterval,
		"sweep_interval", s.cfg.SweepInterval,
	)
	if s.cfg.HeartbeatInterval > 0 {
		s.loop(ctx, s.cfg.HeartbeatInterval, 0, s.heartbeat)
	}
	if s.cfg.SweepInterval > 0 {
		s.loop(ctx, s.cfg.SweepInterval, s.cfg.SweepJitter, s.sweep)
	}
	return nil
}

// Stop gracefully stops the scheduler. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval, jitter time.Duration, job func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(calculateJitteredInterval(interval, jitter))
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				job(ctx)
				timer.Reset(calculateJitteredInterval(interval, jitter))
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// heartbeat publishes one numbered heartbeat notification.
func (s *Scheduler) heartbeat(ctx context.Context) {
	n := s.seq.Add(1)
	data := map[string]any{
		"message":  fmt.Sprintf("Heartbeat #%d", n),
		"sequence": n,
	}
	if s.sessions != nil {
		if active, err := s.sessions.ActiveSessions(ctx); err != nil {
			s.logger.Warn("Failed to count sessions for heartbeat", "error", err)
		} else {
			data["active_sessions"] = active
		}
	}

	if err := s.pub.Publish(HeartbeatType, data, s.cfg.HeartbeatTopic); err != nil {
		s.logger.Error("Failed to publish heartbeat", "sequence", n, "error", err)
		return
	}
	s.logger.Debug("Published heartbeat", "sequence", n)
}

// sweep removes expired sessions.
func (s *Scheduler) sweep(ctx context.Context) {
	removed, err := s.sessions.Sweep(ctx)
	if err != nil {
		s.logger.Error("Session sweep failed", "removed", removed, "error", err)
	}
	if removed > 0 {
		s.logger.Info("Swept expired sessions", "removed", removed)
	}
	s.events.Publish("scheduler.sweep", map[string]any{"removed": removed})
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
