package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/jobs"
	"murmur/internal/logging"
)

const defaultPollInterval = 5 * time.Second

// WorkFunc performs one attempt of a job. A nil return completes the job;
// a context cancellation returns it to the queue without consuming retry
// budget; any other error is classified and charged against the budget.
type WorkFunc func(ctx context.Context, job *jobs.Job) error

// Classifier maps a work error to the failure taxonomy.
type Classifier func(error) jobs.FailureReason

// Runner polls one job repository and drives eligible jobs through their
// attempts.
type Runner struct {
	repo     *jobs.Repository
	work     WorkFunc
	policy   jobs.RetryPolicy
	classify Classifier
	interval time.Duration
	logger   *slog.Logger

	onExhausted func(job *jobs.Job)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional runner behavior.
type Option func(*Runner)

// WithPollInterval overrides how often the repository is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithClassifier overrides how work errors map to failure reasons.
func WithClassifier(classify Classifier) Option {
	return func(r *Runner) {
		if classify != nil {
			r.classify = classify
		}
	}
}

// WithOnExhausted registers a hook invoked when a job goes terminally
// failed.
func WithOnExhausted(hook func(job *jobs.Job)) Option {
	return func(r *Runner) {
		r.onExhausted = hook
	}
}

// New constructs a runner over a repository.
func New(repo *jobs.Repository, work WorkFunc, policy jobs.RetryPolicy, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		repo:     repo,
		work:     work,
		policy:   policy,
		classify: func(error) jobs.FailureReason { return jobs.FailureUnknown },
		interval: defaultPollInterval,
		logger:   logging.NewComponentLogger(logger, "runner."+repo.Kind().Name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins background polling.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runner already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.loop(runCtx)
	return nil
}

// Stop terminates background polling and waits for in-flight work.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("poll pass failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fetches eligible jobs and runs one attempt for each. It returns
// how many attempts it started.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	queued, err := r.repo.FetchQueued(ctx)
	if err != nil {
		return 0, err
	}
	attempts := 0
	for _, job := range queued {
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		attempts++
		r.attempt(ctx, job)
	}
	return attempts, nil
}

func (r *Runner) attempt(ctx context.Context, job *jobs.Job) {
	logger := r.logger.With(logging.String(logging.FieldMemoID, job.MemoID))

	claimed, err := r.repo.MarkProcessing(ctx, job.MemoID)
	if err != nil {
		logger.Warn("claim failed", logging.Error(err))
		return
	}

	workErr := r.work(ctx, claimed)
	if workErr == nil {
		if _, err := r.repo.Complete(ctx, job.MemoID); err != nil {
			logger.Warn("complete failed", logging.Error(err))
		}
		logger.Info("job completed")
		return
	}

	if errors.Is(workErr, context.Canceled) || ctx.Err() != nil {
		// Shutdown mid-attempt; the job stays runnable with its budget intact.
		requeueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.repo.Requeue(requeueCtx, job.MemoID); err != nil {
			logger.Warn("requeue after cancellation failed", logging.Error(err))
		}
		return
	}

	reason := r.classify(workErr)
	updated, err := r.repo.RecordFailure(ctx, job.MemoID, reason, workErr, r.policy)
	if err != nil {
		logger.Warn("record failure failed", logging.Error(err))
		return
	}
	logger.Warn("job attempt failed",
		logging.String("reason", string(reason)),
		logging.Int("retry_count", updated.RetryCount),
		logging.String("status", string(updated.Status)),
		logging.Error(workErr))
	if updated.Status == jobs.StatusFailed && r.onExhausted != nil {
		r.onExhausted(updated)
	}
}
