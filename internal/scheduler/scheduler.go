package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep once a minute.
const DefaultSchedule = "@every 1m"

// SweepFunc ends sessions idle for longer than the given duration and
// returns how many were ended.
type SweepFunc func(idle time.Duration) int

// Sweeper periodically ends idle sessions on a cron schedule.
type Sweeper struct {
	schedule string
	ttl      time.Duration
	sweep    SweepFunc
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether spec is a schedule the sweeper accepts.
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// New creates a Sweeper. An empty schedule means DefaultSchedule.
func New(schedule string, ttl time.Duration, sweep SweepFunc) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		schedule: schedule,
		ttl:      ttl,
		sweep:    sweep,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep job and starts the cron ticker.
func (s *Sweeper) Start() error {
	if s.ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", s.ttl)
	}
	_, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("idle sweeper started", "schedule", s.schedule, "ttl", s.ttl)
	return nil
}

func (s *Sweeper) run() {
	if n := s.sweep(s.ttl); n > 0 {
		slog.Info("idle sessions ended", "count", n)
	}
}

// Stop stops the cron ticker and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
