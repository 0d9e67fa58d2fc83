// Package ticker drives the scheduler's matching pass on a fixed cadence.
package ticker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "orderbot/pkg/logx"
)

// Target is the component ticked on each interval.
type Target interface {
	Tick() int
}

// Service schedules Target.Tick with robfig/cron. Overlapping ticks are
// skipped rather than queued, and a panicking tick is recovered.
type Service struct {
	target Target
	log    logx.Logger

	mu    sync.Mutex
	every time.Duration
	c     *cron.Cron
	entry cron.EntryID

	ticks      atomic.Uint64
	dispatched atomic.Uint64
}

func New(every time.Duration, target Target, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{target: target, log: log, every: every}
}

// Start begins ticking. Calling Start twice is a no-op.
func (s *Service) Start(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cl := cronLogger{log: s.log}
	s.c = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	s.entry = s.c.Schedule(cron.Every(s.every), cron.FuncJob(s.tick))
	s.c.Start()
	s.log.Info("ticker started", logx.Duration("every", s.every))
}

func (s *Service) tick() {
	n := s.target.Tick()
	s.ticks.Add(1)
	if n > 0 {
		s.dispatched.Add(uint64(n))
		s.log.Trace("tick dispatched orders", logx.Int("dispatched", n))
	}
}

// Apply changes the interval. A running ticker is rescheduled in place.
func (s *Service) Apply(every time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if every == s.every {
		return
	}
	s.every = every
	if s.c == nil {
		return
	}
	s.c.Remove(s.entry)
	s.entry = s.c.Schedule(cron.Every(every), cron.FuncJob(s.tick))
	s.log.Info("ticker rescheduled", logx.Duration("every", every))
}

// Stop halts ticking and waits for a running tick or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("ticker stopped", logx.Uint64("ticks", s.ticks.Load()), logx.Uint64("dispatched", s.dispatched.Load()))
}

// Ticks reports how many ticks have run.
func (s *Service) Ticks() uint64 { return s.ticks.Load() }

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
