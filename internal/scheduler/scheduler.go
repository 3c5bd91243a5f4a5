package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc = func(ctx context.Context) error

// Config holds scheduler configuration
type Config struct {
	Timezone *time.Location // Timezone for cron expressions (default: UTC)
	Logger   *slog.Logger   // Logger for scheduler events
}

type jobEntry struct {
	job      gocron.Job
	expected time.Duration
}

// Scheduler runs named jobs on gocron v2. Clock-aligned jobs use cron
// expressions; fixed-period jobs use exact durations.
type Scheduler struct {
	gocronScheduler gocron.Scheduler
	timezone        *time.Location
	logger          *slog.Logger
	ctx             context.Context

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

// cronPattern matches cron expressions (5 or 6 fields)
var cronPattern = regexp.MustCompile(`^(\S+\s+){4,5}\S+$`)

// clockUnits are the alignment units, smallest first. A duration of n units
// is aligned when n divides cycle.
var clockUnits = []struct {
	unit   time.Duration
	name   string
	cycle  int
	layout string
}{
	{time.Second, "second", 60, "*/%d * * * * *"},
	{time.Minute, "minute", 60, "*/%d * * * *"},
	{time.Hour, "hour", 24, "0 */%d * * *"},
}

// NewScheduler creates a scheduler. Jobs receive ctx when they run.
func NewScheduler(ctx context.Context, cfg Config) (*Scheduler, error) {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	gocronScheduler, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithLogger(newGocronLoggerAdapter(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		gocronScheduler: gocronScheduler,
		timezone:        cfg.Timezone,
		logger:          cfg.Logger,
		ctx:             ctx,
		jobs:            make(map[string]*jobEntry),
	}, nil
}

// Schedule registers a clock-aligned job. interval is a duration ("5m"),
// converted to an aligned cron expression, or a cron expression.
func (s *Scheduler) Schedule(name, interval string, runImmediately bool, fn JobFunc) error {
	var (
		definition gocron.JobDefinition
		expected   = 5 * time.Minute
	)

	if isCronExpression(interval) {
		s.logger.Info("Using cron expression", "job", name, "cron", interval, "timezone", s.timezone.String())
		definition = gocron.CronJob(interval, strings.Count(interval, " ") == 5)
	} else {
		cronExpr, err := durationToCron(interval)
		if err != nil {
			return fmt.Errorf("invalid interval for %s: %w", name, err)
		}
		s.logger.Info("Converting duration to cron", "job", name, "duration", interval, "cron", cronExpr, "timezone", s.timezone.String())
		definition = gocron.CronJob(cronExpr, strings.Count(cronExpr, " ") == 5)
		expected, _ = time.ParseDuration(interval)
	}

	return s.add(name, definition, expected, runImmediately, fn)
}

// Every registers a job that runs at an exact period, without clock
// alignment, jitter or backoff.
func (s *Scheduler) Every(name string, period time.Duration, runImmediately bool, fn JobFunc) error {
	if period <= 0 {
		return fmt.Errorf("invalid period for %s: %s", name, period)
	}
	s.logger.Info("Scheduling fixed-period job", "job", name, "every", period)
	return s.add(name, gocron.DurationJob(period), period, runImmediately, fn)
}

func (s *Scheduler) add(name string, definition gocron.JobDefinition, expected time.Duration, runImmediately bool, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if runImmediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	job, err := s.gocronScheduler.NewJob(
		definition,
		gocron.NewTask(func() {
			if err := fn(s.ctx); err != nil {
				s.logger.Error("Job execution failed", "job", name, "error", err)
			}
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled job %s: %w", name, err)
	}

	s.jobs[name] = &jobEntry{job: job, expected: expected}
	return nil
}

// Start begins the scheduler
func (s *Scheduler) Start() error {
	s.gocronScheduler.Start()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, entry := range s.jobs {
		if nextRun, err := entry.job.NextRun(); err == nil {
			s.logger.Info("Job scheduled", "job", name, "next_run", nextRun.Format(time.RFC3339))
		}
	}
	s.logger.Info("Scheduler started", "jobs", len(s.jobs), "timezone", s.timezone.String())
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.gocronScheduler.Shutdown()
}

func (s *Scheduler) entry(name string) (*jobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return e, nil
}

// NextRun returns the next scheduled run time of a job
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	e, err := s.entry(name)
	if err != nil {
		return time.Time{}, err
	}
	nextRun, err := e.job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return nextRun, nil
}

// LastRun returns the last run time of a job
func (s *Scheduler) LastRun(name string) (time.Time, error) {
	e, err := s.entry(name)
	if err != nil {
		return time.Time{}, err
	}
	lastRun, err := e.job.LastRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}
	return lastRun, nil
}

// ExpectedInterval is the period between runs used by the health checker.
// Irregular cron expressions report a conservative 5 minutes.
func (s *Scheduler) ExpectedInterval(name string) (time.Duration, error) {
	e, err := s.entry(name)
	if err != nil {
		return 0, err
	}
	return e.expected, nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// isCronExpression checks if a string is a cron expression (vs duration)
func isCronExpression(s string) bool {
	// Cron expressions have 5 or 6 space-separated fields
	return cronPattern.MatchString(s)
}

// durationToCron converts "5m" to "*/5 * * * *", "1h" to "0 */1 * * *" and
// "30s" to "*/30 * * * * *".
func durationToCron(durationStr string) (string, error) {
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return "", fmt.Errorf("invalid duration format: %w", err)
	}

	for i, u := range clockUnits {
		if i+1 < len(clockUnits) && d >= clockUnits[i+1].unit {
			continue
		}
		if d%u.unit != 0 {
			break
		}
		n := int(d / u.unit)
		if n == 0 || u.cycle%n != 0 {
			return "", fmt.Errorf("%s intervals must divide evenly into %d (got %s)", u.name, u.cycle, durationStr)
		}
		return fmt.Sprintf(u.layout, n), nil
	}
	return "", fmt.Errorf("duration must be whole seconds, minutes, or hours (got %s)", durationStr)
}

// ValidateScheduleInterval validates a schedule interval (duration or cron)
func ValidateScheduleInterval(interval string) error {
	if interval == "" {
		return nil // no wallet refresh job
	}

	if isCronExpression(interval) {
		// Field syntax is checked when the job is registered.
		if n := len(strings.Fields(interval)); n != 5 && n != 6 {
			return errors.New("cron expression must have 5 or 6 fields")
		}
		return nil
	}

	_, err := durationToCron(interval)
	return err
}

// gocronLoggerAdapter adapts slog.Logger to gocron.Logger interface
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

func (a *gocronLoggerAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

func (a *gocronLoggerAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

func (a *gocronLoggerAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// DescribeSchedule provides a human-readable description of the schedule
func DescribeSchedule(interval string, timezone *time.Location) string {
	if timezone == nil {
		timezone = time.UTC
	}

	if isCronExpression(interval) {
		return fmt.Sprintf("cron: %s (%s)", interval, timezone.String())
	}

	duration, err := time.ParseDuration(interval)
	if err != nil {
		return fmt.Sprintf("invalid: %s", interval)
	}

	cronExpr, err := durationToCron(interval)
	if err != nil {
		return fmt.Sprintf("duration: %s (non-aligned)", interval)
	}

	return fmt.Sprintf("every %s (aligned to clock, cron: %s, %s)", duration, cronExpr, timezone.String())
}
