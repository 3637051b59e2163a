package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/enrich"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/testsupport"
)

func newTestRepo(t *testing.T) *jobs.Repository {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	repo := jobs.NewRepository(jobs.AutoTitle, db, logging.NewNop())
	t.Cleanup(repo.Close)
	return repo
}

func testPolicy() jobs.RetryPolicy {
	return jobs.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}.WithoutJitter()
}

func TestRunOnceCompletesJob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, "memo-1", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var worked []string
	r := New(repo, func(ctx context.Context, job *jobs.Job) error {
		worked = append(worked, job.MemoID)
		return nil
	}, testPolicy(), logging.NewNop())

	attempts, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if attempts != 1 || len(worked) != 1 {
		t.Fatalf("expected one attempt, got %d (%v)", attempts, worked)
	}

	job, err := repo.JobFor(ctx, "memo-1")
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
}

func TestRunOnceChargesRetryOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, "memo-1", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := New(repo, func(ctx context.Context, job *jobs.Job) error {
		return enrich.ErrTransient
	}, testPolicy(), logging.NewNop(), WithClassifier(enrich.Classify))

	if _, err := r.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	job, err := repo.JobFor(ctx, "memo-1")
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if job.Status != jobs.StatusQueued || job.RetryCount != 1 {
		t.Fatalf("expected requeued with one retry, got %+v", job)
	}
	if job.FailureReason != jobs.FailureNetwork {
		t.Fatalf("expected network classification, got %q", job.FailureReason)
	}
}

func TestExhaustedHookFires(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, "memo-1", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var exhausted []*jobs.Job
	r := New(repo, func(ctx context.Context, job *jobs.Job) error {
		return enrich.ErrInvalidInput
	}, testPolicy(), logging.NewNop(),
		WithClassifier(enrich.Classify),
		WithOnExhausted(func(job *jobs.Job) { exhausted = append(exhausted, job) }))

	if _, err := r.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(exhausted) != 1 {
		t.Fatalf("expected exhausted hook once, got %d", len(exhausted))
	}
	if exhausted[0].Status != jobs.StatusFailed {
		t.Fatalf("expected failed job in hook, got %s", exhausted[0].Status)
	}
}

func TestCancellationRequeuesWithoutCharge(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.Enqueue(context.Background(), "memo-1", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := New(repo, func(ctx context.Context, job *jobs.Job) error {
		cancel()
		return ctx.Err()
	}, testPolicy(), logging.NewNop())

	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run once: %v", err)
	}
	job, err := repo.JobFor(context.Background(), "memo-1")
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued after cancellation, got %s", job.Status)
	}
	if job.RetryCount != 0 {
		t.Fatalf("cancellation consumed a retry slot: %d", job.RetryCount)
	}
}

func TestStartStop(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, "memo-1", ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	r := New(repo, func(ctx context.Context, job *jobs.Job) error {
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	}, testPolicy(), logging.NewNop(), WithPollInterval(5*time.Millisecond))

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never picked up the job")
	}
	r.Stop()
	r.Stop()
}
