// Package cron schedules recurring lifecycle work, chiefly the trip
// orchestrator tick, on top of robfig/cron.
package cron

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/runner"
	"github.com/goliatone/go-doorstep/trip"
)

// JobConfig controls how a scheduled job is run.
type JobConfig struct {
	Expression string
	MaxRetries int
	MaxRuns    int
	Timeout    time.Duration
	Deadline   time.Time
	RunOnce    bool
}

// Ticker is what the scheduler drives on every tick.
type Ticker interface {
	Tick(ctx context.Context) (trip.Phase, error)
}

// Scheduler wraps cron functionality.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger   doorstep.Logger
	parser   Parser
	logLevel LogLevel

	// ctx is handed to every job and canceled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	nextHandleID int64
	handles      map[int64]*jobHandle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   StandardParser,
		logLevel: LogLevelError,
		handles:  make(map[int64]*jobHandle),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.errorHandler == nil {
		s.errorHandler = func(err error) {
			if s.logger != nil {
				s.logger.Error("scheduled job failed: %v", err)
				return
			}
			log.Printf("error: %v\n", err)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleTicks runs t.Tick on every cron tick and logs phase changes.
func (s *Scheduler) ScheduleTicks(cfg JobConfig, t Ticker) (Handle, error) {
	if t == nil {
		return nil, fmt.Errorf("ticker cannot be nil")
	}
	var (
		mu   sync.Mutex
		last trip.Phase
	)
	return s.ScheduleCron(cfg, func(ctx context.Context) error {
		phase, err := t.Tick(ctx)
		mu.Lock()
		changed := phase != last
		last = phase
		mu.Unlock()
		if changed && s.logger != nil {
			doorstep.WithLoggerFields(s.logger, map[string]any{"phase": string(phase)}).Info("trip phase changed")
		}
		return err
	})
}

// ScheduleCron schedules a recurring handler by cron expression.
func (s *Scheduler) ScheduleCron(cfg JobConfig, handler any) (Handle, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	run, err := s.buildRunnable(cfg, handler)
	if err != nil {
		return nil, err
	}

	h := s.newHandle()
	job := rcron.FuncJob(func() {
		if h.closed() {
			return
		}

		h.setStatus(ScheduleStatusRunning, nil)
		err := run()
		if h.closed() || s.ctx.Err() != nil {
			return
		}
		if err != nil {
			h.setStatus(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		h.setStatus(ScheduleStatusIdle, nil)
	})

	entryID, err := s.cron.AddJob(cfg.Expression, job)
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	h.entryID = int(entryID)
	s.storeHandle(h)
	return h, nil
}

// ScheduleAfter schedules one execution after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, handler any) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	run, err := s.buildRunnable(cfg, handler)
	if err != nil {
		return nil, err
	}

	h := s.newHandle()
	s.storeHandle(h)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.Done():
			return
		}

		if h.closed() {
			return
		}
		h.setStatus(ScheduleStatusRunning, nil)
		err := run()
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			h.setTerminal(ScheduleStatusFailed, err)
			s.errorHandler(err)
			s.removeStoredHandle(h.id)
			return
		}
		h.setTerminal(ScheduleStatusCompleted, nil)
		s.removeStoredHandle(h.id)
	}()

	return h, nil
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs, cancels the context of running ones,
// waits for them and marks active handles as stopped.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	var handles []*jobHandle
	s.mu.Lock()
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, h := range handles {
		if h == nil {
			continue
		}
		if h.entryID > 0 {
			s.cron.Remove(rcron.EntryID(h.entryID))
		}
		if h.closed() {
			continue
		}
		h.setTerminal(ScheduleStatusStopped, nil)
	}

	if ctx == nil {
		return nil
	}
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) removeHandle(id int64) {
	h := s.removeStoredHandle(id)
	if h == nil {
		return
	}
	if h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *jobHandle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	delete(s.handles, id)
	return h
}

func (s *Scheduler) storeHandle(h *jobHandle) {
	if s == nil || h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*jobHandle)
	}
	s.handles[h.id] = h
}

func (s *Scheduler) newHandle() *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &jobHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) buildRunnable(cfg JobConfig, handler any) (func() error, error) {
	r, ok := handler.(func(context.Context) error)
	if !ok || r == nil {
		return nil, fmt.Errorf("unsupported handler type: %T", handler)
	}
	h := runner.NewHandler(s.runnerOptions(cfg)...)
	return func() error {
		return h.Run(s.ctx, r)
	}, nil
}

// runnerOptions reports intermediate failures only at debug level; the
// final error reaches the scheduler's error handler through the job.
func (s *Scheduler) runnerOptions(cfg JobConfig) []runner.Option {
	opts := []runner.Option{
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithDeadline(cfg.Deadline),
		runner.WithRunOnce(cfg.RunOnce),
		runner.WithLogger(s.logger),
		runner.WithRetryStrategy(runner.RetryIf{
			Strategy:  runner.NoDelayStrategy{},
			Retryable: doorstep.IsTransient,
		}),
		runner.WithErrorHandler(func(err error) {
			if s.logger != nil {
				s.logger.Debug("scheduled attempt failed: %v", err)
			}
		}),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRuns > 0 {
		opts = append(opts, runner.WithMaxRuns(cfg.MaxRuns))
	}
	return opts
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	if s.parser == SecondsParser {
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	chain := []rcron.JobWrapper{rcron.SkipIfStillRunning(rcron.DiscardLogger)}
	if s.errorHandler != nil {
		chain = append([]rcron.JobWrapper{rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler})}, chain...)
	}
	opts = append(opts, rcron.WithChain(chain...))

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logLevel > LogLevelSilent:
		cronLogger = makeLogger(os.Stdout, s.logLevel)
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
