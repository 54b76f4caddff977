package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Action is invoked when a trigger's window is reached. Its error is logged;
// the occurrence is consumed either way.
type Action func(ctx context.Context) error

// Ledger persists the last fired occurrence key per action so a restart
// inside a trigger minute does not fire the action again.
type Ledger interface {
	LastFired(action string) (string, error)
	RecordFired(action, key string, at time.Time) error
}

// Trigger is a recurring (weekday set, hour, minute) window.
type Trigger struct {
	Weekdays []time.Weekday
	Hour     int
	Minute   int
}

// Validate checks the trigger preconditions.
func (t Trigger) Validate() error {
	if len(t.Weekdays) == 0 {
		return errors.New("trigger needs at least one weekday")
	}
	for _, d := range t.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour %d out of range", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range", t.Minute)
	}
	return nil
}

// Matches reports whether now falls inside the trigger's minute.
func (t Trigger) Matches(now time.Time) bool {
	if now.Hour() != t.Hour || now.Minute() != t.Minute {
		return false
	}
	for _, d := range t.Weekdays {
		if now.Weekday() == d {
			return true
		}
	}
	return false
}

type job struct {
	name      string
	trigger   Trigger
	action    Action
	lastFired string
}

// Scheduler turns a coarse periodic tick into at-most-once-per-day firings.
// A trigger minute that passes without a tick is skipped, never caught up.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	loc      *time.Location
	ledger   Ledger
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLedger persists fired occurrence keys.
func WithLedger(l Ledger) Option {
	return func(s *Scheduler) { s.ledger = l }
}

// WithInterval sets the tick interval (default one minute).
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithClock replaces time.Now for the ticker loop.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler evaluating triggers in loc.
func New(loc *time.Location, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		loc:      loc,
		interval: time.Minute,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure registers a named action.
func (s *Scheduler) Configure(name string, trigger Trigger, action Action) error {
	if name == "" {
		return errors.New("action name is required")
	}
	if action == nil {
		return fmt.Errorf("action %q: nil callback", name)
	}
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("action %q: %w", name, err)
	}

	j := &job{name: name, trigger: trigger, action: action}
	if s.ledger != nil {
		key, err := s.ledger.LastFired(name)
		if err != nil {
			s.logger.Warn("load last firing", "action", name, "error", err)
		} else {
			j.lastFired = key
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.name == name {
			return fmt.Errorf("action %q already configured", name)
		}
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Tick evaluates every configured action against now. Ticks are serialized;
// an action fires at most once per calendar day in the scheduler's zone.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.loc)
	key := now.Format("2006-01-02")

	for _, j := range s.jobs {
		if !j.trigger.Matches(now) || j.lastFired == key {
			continue
		}
		s.fire(ctx, j, now)
		j.lastFired = key
		if s.ledger != nil {
			if err := s.ledger.RecordFired(j.name, key, now); err != nil {
				s.logger.Warn("record firing", "action", j.name, "error", err)
			}
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("action panicked", "action", j.name, "panic", r)
		}
	}()

	s.logger.Info("firing", "action", j.name, "at", now.Format(time.DateTime))
	if err := j.action(ctx); err != nil {
		s.logger.Error("action failed", "action", j.name, "error", err)
	}
}

// LastFired returns the occurrence key most recently fired for name.
func (s *Scheduler) LastFired(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.lastFired
		}
	}
	return ""
}

// Start begins the ticker loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx, s.now())
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
