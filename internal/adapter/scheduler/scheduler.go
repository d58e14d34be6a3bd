package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ifiokjr/verily/internal/platform/logger"
)

// JobFunc is a unit of background work.
type JobFunc func(ctx context.Context) error

// CronJobID identifies a cron job.
type CronJobID = cron.EntryID

// TickerJobID identifies a ticker job.
type TickerJobID int

// OverlapPolicy decides what happens when a job is due while its previous
// run is still going.
type OverlapPolicy int

const (
	// AllowOverlap runs every due execution (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the execution.
	SkipIfRunning
	// DelayIfRunning waits for the previous run to finish.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// JobOptions configures a job.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex
}

func (w *jobWrapper) name() string {
	if w.options.Name == "" {
		return "unnamed"
	}
	return w.options.Name
}

type tickerJob struct {
	cancel  context.CancelFunc
	wrapper *jobWrapper
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logger.ErrorAttr(err)}, keysAndValues...)...)
}

// JobHooks are optional observers of job runs.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config configures a Scheduler.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

// Scheduler runs cron and fixed interval jobs until stopped or until its
// parent context ends.
type Scheduler struct {
	cron   *cron.Cron
	clog   cronLogger
	logger *slog.Logger
	hooks  JobHooks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	tickerJobs   map[TickerJobID]*tickerJob
	nextTickerID TickerJobID

	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates a scheduler bound to context.Background.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext creates a scheduler that stops when parentCtx ends.
// Cron schedules use the standard five field syntax plus descriptors such
// as "@hourly" and "@every 5m".
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clog := cronLogger{logger: log.With("component", "cron")}

	return &Scheduler{
		cron:         cron.New(cron.WithLogger(clog)),
		clog:         clog,
		logger:       log,
		hooks:        cfg.JobHooks,
		ctx:          ctx,
		cancel:       cancel,
		tickerJobs:   make(map[TickerJobID]*tickerJob),
		nextTickerID: 1,
	}
}

// AddCronJob adds a job on a cron schedule with default options.
func (s *Scheduler) AddCronJob(schedule string, job JobFunc) (CronJobID, error) {
	return s.AddCronJobWithOptions(schedule, job, JobOptions{})
}

// AddCronJobWithOptions adds a job on a cron schedule.
func (s *Scheduler) AddCronJobWithOptions(schedule string, job JobFunc, opts JobOptions) (CronJobID, error) {
	wrapper := &jobWrapper{job: job, options: opts}

	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(s.clog))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(s.clog))
	default:
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(schedule, chain.Then(cron.FuncJob(func() {
		s.run(wrapper)
	})))
	if err != nil {
		s.logger.Error("failed to add cron job", "schedule", schedule, "name", opts.Name, logger.ErrorAttr(err))
		return 0, fmt.Errorf("scheduler: schedule %q: %w", schedule, err)
	}

	s.logger.Info("cron job added", "schedule", schedule, "name", opts.Name, "overlap_policy", opts.OverlapPolicy.String(), "id", id)
	return id, nil
}

// AddTickerJob adds a job run every interval with default options.
func (s *Scheduler) AddTickerJob(interval time.Duration, job JobFunc) TickerJobID {
	return s.AddTickerJobWithOptions(interval, job, JobOptions{})
}

// AddTickerJobWithOptions adds a job run every interval. The first run
// happens one interval after the call.
func (s *Scheduler) AddTickerJobWithOptions(interval time.Duration, job JobFunc, opts JobOptions) TickerJobID {
	wrapper := &jobWrapper{job: job, options: opts}
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	id := s.nextTickerID
	s.nextTickerID++
	s.tickerJobs[id] = &tickerJob{cancel: cancel, wrapper: wrapper}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(wrapper)
			case <-ctx.Done():
				s.logger.Debug("ticker job stopped", "name", opts.Name, "id", id)
				return
			}
		}
	}()

	s.logger.Info("ticker job added", "interval", interval, "name", opts.Name, "overlap_policy", opts.OverlapPolicy.String(), "id", id)
	return id
}

// RemoveCronJob removes a cron job. Unknown ids are ignored.
func (s *Scheduler) RemoveCronJob(id CronJobID) {
	s.cron.Remove(id)
	s.logger.Info("cron job removed", "id", id)
}

// RemoveTickerJob stops a ticker job and reports whether it existed.
func (s *Scheduler) RemoveTickerJob(id TickerJobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.tickerJobs[id]
	if !ok {
		return false
	}
	job.cancel()
	delete(s.tickerJobs, id)

	s.logger.Info("ticker job removed", "id", id, "name", job.wrapper.options.Name)
	return true
}

// Start starts the cron runner. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext is Stop bounded by ctx. When ctx ends first the shutdown
// still completes, and ctx.Err() is returned.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, waiting for jobs")
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for _, job := range s.tickerJobs {
		job.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// run executes one job invocation, applying the overlap policy, timeout,
// hooks and panic recovery.
func (s *Scheduler) run(w *jobWrapper) {
	name := w.name()

	switch w.options.OverlapPolicy {
	case SkipIfRunning:
		if !w.running.TryLock() {
			s.logger.Debug("skipping job, previous run still active", "name", name)
			return
		}
		defer w.running.Unlock()
	case DelayIfRunning:
		w.running.Lock()
		defer w.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", name, logger.ErrorAttr(err))
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(name, err)
			}
		}
	}()

	ctx := s.ctx
	if w.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, w.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.job(ctx)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, duration, err)
	}
	if err != nil {
		s.logger.Error("job failed", "name", name, "duration", duration, logger.ErrorAttr(err))
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(name, err)
		}
		return
	}
	s.logger.Debug("job completed", "name", name, "duration", duration)
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}
