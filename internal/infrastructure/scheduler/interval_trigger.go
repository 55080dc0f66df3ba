package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of periodic work
type Job func(ctx context.Context) error

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	// Name identifies the job in logs
	Name string

	// Interval is the time between runs
	Interval time.Duration

	// RunOnStart runs the job once immediately, so work that came due while
	// the process was down is handled without waiting a full interval.
	RunOnStart bool

	// RunTimeout bounds a single run. Zero means no bound.
	RunTimeout time.Duration
}

// IntervalTrigger runs a Job on a fixed interval. Runs never overlap.
type IntervalTrigger struct {
	config IntervalTriggerConfig
	job    Job
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	runMu   sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(config IntervalTriggerConfig, job Job, logger *zap.Logger) (*IntervalTrigger, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}
	if config.Name == "" {
		config.Name = "job"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config: config,
		job:    job,
		logger: logger.With(zap.String("job", config.Name)),
	}, nil
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop stops the trigger and waits for an in-flight run to finish
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the job immediately unless a run is already executing
func (t *IntervalTrigger) RunNow(ctx context.Context) error {
	if !t.runMu.TryLock() {
		return ErrRunInProgress
	}
	defer t.runMu.Unlock()
	return t.run(ctx)
}

// LastRun returns when the job last finished and its error
func (t *IntervalTrigger) LastRun() (time.Time, error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.lastRun, t.lastErr
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick runs the job unless a manual run holds the lock
func (t *IntervalTrigger) tick(ctx context.Context) {
	if !t.runMu.TryLock() {
		t.logger.Debug("Skipping tick, previous run still in progress")
		return
	}
	defer t.runMu.Unlock()
	_ = t.run(ctx)
}

// run must be called with runMu held
func (t *IntervalTrigger) run(ctx context.Context) (err error) {
	if t.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.RunTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		t.lastRun = time.Now()
		t.lastErr = err
		if err != nil {
			t.logger.Error("Scheduled job failed", zap.Error(err))
		}
	}()

	return t.job(ctx)
}
