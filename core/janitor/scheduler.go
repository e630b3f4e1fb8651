// Package janitor purges expired sessions and spent password reset tokens on
// a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"incident-desk/config"
	"incident-desk/core/store"
	"incident-desk/core/utils"

	"github.com/robfig/cron/v3"
)

type Result struct {
	Sessions    int64
	ResetTokens int64
}

type Scheduler struct {
	cfg         config.SchedulerConfig
	sessions    store.SessionStore
	resetTokens store.ResetTokensStore
	logger      *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(cfg config.SchedulerConfig, sessions store.SessionStore, resetTokens store.ResetTokensStore, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, sessions: sessions, resetTokens: resetTokens, logger: logger}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	spec := s.cfg.JanitorSpec
	if spec == "" {
		spec = "@every 10m"
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx, time.Now().UTC()); err != nil {
			s.logger.Errorf("janitor: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.logger.Printf("janitor scheduled (%s)", spec)
	return nil
}

// StopWithContext stops the schedule and waits for a running purge.
func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	res.Sessions = n
	n, err = s.resetTokens.DeleteStaleResetTokens(ctx, now)
	if err != nil {
		return res, fmt.Errorf("purge reset tokens: %w", err)
	}
	res.ResetTokens = n
	if res.Sessions > 0 || res.ResetTokens > 0 {
		s.logger.Printf("janitor purged %d sessions, %d reset tokens", res.Sessions, res.ResetTokens)
	}
	return res, nil
}
