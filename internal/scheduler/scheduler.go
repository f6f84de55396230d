// Package scheduler triggers recurring jobs on a cron backend. The poll
// tick uses SkipIfStillRunning: when one iteration's upstream latency
// exceeds the interval, the next tick is skipped rather than stacked —
// the accepted head-of-line behavior of sequential polling.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shopwatch/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	c   *cron.Cron
	log logx.Logger

	ctx context.Context
}

func New(loc *time.Location, log logx.Logger) *Service {
	cl := cronLogger{log: log}
	s := &Service{log: log}
	s.c = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// AddInterval schedules job every d. Jobs receive the context passed to
// Start; registrations must happen before Start.
func (s *Service) AddInterval(name string, d time.Duration, job func(ctx context.Context)) error {
	if d <= 0 {
		return fmt.Errorf("scheduler: %s: interval must be positive", name)
	}
	return s.add(name, fmt.Sprintf("@every %s", d), job)
}

// AddDaily schedules job once a day at HH:MM in the service's location.
func (s *Service) AddDaily(name string, hour, minute int, job func(ctx context.Context)) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("scheduler: %s: invalid time %02d:%02d", name, hour, minute)
	}
	return s.add(name, fmt.Sprintf("%d %d * * *", minute, hour), job)
}

func (s *Service) add(name, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	s.log.Debug("job registered", logx.String("job", name), logx.String("spec", spec))
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.c.Start()
	s.log.Info("scheduler started")
}

func (s *Service) Stop(ctx context.Context) {
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
