// Package scheduler drives the monitors on a fixed interval with gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/linkmonitor/internal/monitor"
)

const (
	DefaultInterval      = 60 * time.Second
	DefaultAlertInterval = 15 * time.Second
	DefaultStopTimeout   = 15 * time.Second
)

type Config struct {
	Interval      time.Duration
	MaxConcurrent int
	AlertInterval time.Duration
	StopTimeout   time.Duration
}

// Scheduler runs one singleton job per collector plus the housekeeping jobs.
// A cycle still running when its next tick is due makes that tick skip.
type Scheduler struct {
	cfg  Config
	log  *zap.Logger
	cron gocron.Scheduler
	ctx  context.Context
	stop context.CancelFunc
}

func New(cfg Config, log *zap.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = DefaultAlertInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(uint(cfg.MaxConcurrent), gocron.LimitModeWait),
		gocron.WithStopTimeout(cfg.StopTimeout),
		gocron.WithLogger(cronLogger{log.Sugar().With("component", "gocron")}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:  cfg,
		log:  log,
		cron: cron,
		ctx:  ctx,
		stop: cancel,
	}, nil
}

func (s *Scheduler) jobOptions(name string) []gocron.JobOption {
	return []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithError(func(_ uuid.UUID, jobName string, err error) {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.log.Warn("job_failed", zap.String("job", jobName), zap.Error(err))
			}),
		),
	}
}

// AddCollector schedules c every interval, starting immediately.
func (s *Scheduler) AddCollector(c monitor.Collector) error {
	opts := append(s.jobOptions("collect:"+c.Name()), gocron.WithStartAt(gocron.WithStartImmediately()))
	j, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() error {
			_, err := c.Collect(s.ctx)
			return err
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", c.Name(), err)
	}
	s.log.Debug("job_scheduled", zap.String("job", j.Name()), zap.Stringer("id", j.ID()))
	return nil
}

// AddAlerter polls a for state changes every AlertInterval.
func (s *Scheduler) AddAlerter(a *Alerter) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.AlertInterval),
		gocron.NewTask(func() error { return a.ScanOnce(s.ctx) }),
		s.jobOptions("alerter")...,
	)
	if err != nil {
		return fmt.Errorf("schedule alerter: %w", err)
	}
	return nil
}

// AddRetention runs r daily at midnight.
func (s *Scheduler) AddRetention(r Retention) error {
	_, err := s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() error {
			_, err := r.Run(s.ctx)
			return err
		}),
		s.jobOptions("retention")...,
	)
	if err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	return nil
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.cron.Jobs()
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name())
	}
	return out
}

func (s *Scheduler) Start() {
	s.log.Info("scheduler_started", zap.Int("jobs", len(s.cron.Jobs())), zap.Duration("interval", s.cfg.Interval))
	s.cron.Start()
}

// Shutdown interrupts running probes and waits for in-flight writes.
func (s *Scheduler) Shutdown() error {
	s.stop()
	if err := s.cron.Shutdown(); err != nil {
		s.log.Error("scheduler_stop_failed", zap.Error(err))
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.log.Info("scheduler_stopped")
	return nil
}

// cronLogger adapts zap to gocron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Debug(msg string, args ...any) { c.l.Debugw(msg, args...) }
func (c cronLogger) Info(msg string, args ...any) { c.l.Infow(msg, args...) }
func (c cronLogger) Warn(msg string, args ...any) { c.l.Warnw(msg, args...) }
func (c cronLogger) Error(msg string, args ...any) { c.l.Errorw(msg, args...) }
