package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/bus"
	"murmur/internal/logging"
	"murmur/internal/records"
)

// Repository persists the jobs of one kind, keyed by memo. Saving or
// deleting republishes the full snapshot so observers track the table
// without polling. One mutex serializes all mutations, matching the
// single-owner model the rest of the stores use.
type Repository struct {
	kind   Kind
	db     *records.DB
	logger *slog.Logger
	events *bus.Bus[[]*Job]

	mu  sync.Mutex
	now func() time.Time
}

// NewRepository constructs a job repository for a kind.
func NewRepository(kind Kind, db *records.DB, logger *slog.Logger) *Repository {
	return &Repository{
		kind:   kind,
		db:     db,
		logger: logging.NewComponentLogger(logger, "jobs."+kind.Name),
		events: bus.New[[]*Job](0),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Kind returns the kind descriptor this repository was instantiated with.
func (r *Repository) Kind() Kind {
	return r.kind
}

// Close shuts down the snapshot bus.
func (r *Repository) Close() {
	r.events.Close()
}

// Subscribe streams the full job snapshot after every mutation.
func (r *Repository) Subscribe() *bus.Subscription[[]*Job] {
	return r.events.Subscribe()
}

// FetchAll returns every job ordered by creation time ascending.
func (r *Repository) FetchAll(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.Conn().QueryContext(
		ctx,
		`SELECT `+r.columns()+` FROM `+r.kind.Table+` ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s jobs: %w", r.kind.Name, err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// FetchQueued returns the runner's work list: queued or processing jobs whose
// backoff window, if any, has elapsed. A job waiting on nextRetryAt is
// excluded so the runner never busy-retries before the delay passes.
func (r *Repository) FetchQueued(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.Conn().QueryContext(
		ctx,
		`SELECT `+r.columns()+` FROM `+r.kind.Table+`
         WHERE status IN (?, ?) ORDER BY created_at`,
		StatusQueued,
		StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch queued %s jobs: %w", r.kind.Name, err)
	}
	defer rows.Close()

	all, err := r.collect(rows)
	if err != nil {
		return nil, err
	}
	now := r.now()
	eligible := make([]*Job, 0, len(all))
	for _, job := range all {
		if job.Eligible(now) {
			eligible = append(eligible, job)
		}
	}
	return eligible, nil
}

// JobFor returns the job for one memo, or nil when absent.
func (r *Repository) JobFor(ctx context.Context, memoID string) (*Job, error) {
	row := r.db.Conn().QueryRowContext(
		ctx,
		`SELECT `+r.columns()+` FROM `+r.kind.Table+` WHERE memo_id = ?`,
		memoID,
	)
	job, err := r.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s job: %w", r.kind.Name, err)
	}
	return job, nil
}

// Save upserts a job keyed by memo id and republishes the snapshot. An
// existing row is mutated in place so its creation time survives.
func (r *Repository) Save(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.MemoID == "" {
		return errors.New("job memo id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.saveLocked(ctx, job); err != nil {
		return err
	}
	r.publishSnapshot(ctx)
	return nil
}

// Delete removes a memo's job and republishes the snapshot.
func (r *Repository) Delete(ctx context.Context, memoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM `+r.kind.Table+` WHERE memo_id = ?`, memoID)
	if err != nil {
		return false, fmt.Errorf("delete %s job: %w", r.kind.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		r.publishSnapshot(ctx)
	}
	return affected > 0, nil
}

// Enqueue ensures a queued job exists for the memo. A live job is returned
// untouched; a terminal job is revived with a fresh retry budget.
func (r *Repository) Enqueue(ctx context.Context, memoID, mode string) (*Job, error) {
	if !r.kind.HasMode {
		mode = ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.JobFor(ctx, memoID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Terminal() {
		return existing, nil
	}

	now := r.now()
	job := &Job{
		MemoID:    memoID,
		Status:    StatusQueued,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		job.CreatedAt = existing.CreatedAt
	}
	if err := r.saveLocked(ctx, job); err != nil {
		return nil, err
	}
	r.publishSnapshot(ctx)
	return job, nil
}

// MarkProcessing claims a queued job for an attempt.
func (r *Repository) MarkProcessing(ctx context.Context, memoID string) (*Job, error) {
	return r.transition(ctx, memoID, func(job *Job) {
		job.Status = StatusProcessing
	})
}

// Complete records a successful attempt.
func (r *Repository) Complete(ctx context.Context, memoID string) (*Job, error) {
	return r.transition(ctx, memoID, func(job *Job) {
		job.Status = StatusCompleted
		job.LastError = ""
		job.NextRetryAt = nil
		job.FailureReason = ""
	})
}

// Requeue returns an in-flight job to the queue without consuming a retry
// slot. Used when an attempt is cancelled rather than failed.
func (r *Repository) Requeue(ctx context.Context, memoID string) (*Job, error) {
	return r.transition(ctx, memoID, func(job *Job) {
		job.Status = StatusQueued
		job.NextRetryAt = nil
	})
}

// RecordFailure applies the retry policy to a failed attempt. Retryable
// failures below the ceiling requeue with backoff; the rest fail the job
// permanently. Reports against an already-failed job are ignored so the
// retry count never moves after the job goes terminal.
func (r *Repository) RecordFailure(ctx context.Context, memoID string, reason FailureReason, cause error, policy RetryPolicy) (*Job, error) {
	if reason == "" {
		reason = FailureUnknown
	}
	return r.transition(ctx, memoID, func(job *Job) {
		if job.Status == StatusFailed {
			return
		}
		if cause != nil {
			job.LastError = cause.Error()
		}
		job.FailureReason = reason

		if !reason.Retryable() {
			job.Status = StatusFailed
			job.NextRetryAt = nil
			return
		}

		job.RetryCount++
		if job.RetryCount >= policy.MaxRetries {
			job.Status = StatusFailed
			job.NextRetryAt = nil
			return
		}
		retryAt := r.now().Add(policy.Delay(job.RetryCount))
		job.Status = StatusQueued
		job.NextRetryAt = &retryAt
	})
}

// RetryFailed revives failed jobs (all of them, or a selected set) with a
// fresh retry budget. Returns how many were requeued.
func (r *Repository) RetryFailed(ctx context.Context, memoIDs ...string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := records.FormatTime(r.now())
	var (
		res sql.Result
		err error
	)
	if len(memoIDs) == 0 {
		res, err = r.db.Conn().ExecContext(
			ctx,
			`UPDATE `+r.kind.Table+`
             SET status = ?, retry_count = 0, last_error = NULL, next_retry_at = NULL,
                 failure_reason = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued, timestamp, StatusFailed,
		)
	} else {
		args := make([]any, 0, len(memoIDs)+3)
		args = append(args, StatusQueued, timestamp, StatusFailed)
		for _, id := range memoIDs {
			args = append(args, id)
		}
		res, err = r.db.Conn().ExecContext(
			ctx,
			`UPDATE `+r.kind.Table+`
             SET status = ?, retry_count = 0, last_error = NULL, next_retry_at = NULL,
                 failure_reason = NULL, updated_at = ?
             WHERE status = ? AND memo_id IN (`+records.Placeholders(len(memoIDs))+`)`,
			args...,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("retry failed %s jobs: %w", r.kind.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.publishSnapshot(ctx)
	}
	return affected, nil
}

// ResetStuckProcessing returns jobs stranded in Processing (a prior process
// died mid-attempt) to the queue. Run at daemon startup.
func (r *Repository) ResetStuckProcessing(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Conn().ExecContext(
		ctx,
		`UPDATE `+r.kind.Table+` SET status = ?, updated_at = ? WHERE status = ?`,
		StatusQueued,
		records.FormatTime(r.now()),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck %s jobs: %w", r.kind.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.publishSnapshot(ctx)
	}
	return affected, nil
}

// Stats returns a count of jobs grouped by status.
func (r *Repository) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `SELECT status, COUNT(1) FROM `+r.kind.Table+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s job stats: %w", r.kind.Name, err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *Repository) transition(ctx context.Context, memoID string, mutate func(*Job)) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, err := r.JobFor(ctx, memoID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("no %s job for memo %s", r.kind.Name, memoID)
	}
	mutate(job)
	if err := r.saveLocked(ctx, job); err != nil {
		return nil, err
	}
	r.publishSnapshot(ctx)
	return job, nil
}

func (r *Repository) saveLocked(ctx context.Context, job *Job) error {
	job.UpdatedAt = r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	var (
		query string
		args  []any
	)
	if r.kind.HasMode {
		query = `INSERT INTO ` + r.kind.Table + `
            (memo_id, mode, status, created_at, updated_at, retry_count, last_error, next_retry_at, failure_reason)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(memo_id) DO UPDATE SET
                mode = excluded.mode,
                status = excluded.status,
                updated_at = excluded.updated_at,
                retry_count = excluded.retry_count,
                last_error = excluded.last_error,
                next_retry_at = excluded.next_retry_at,
                failure_reason = excluded.failure_reason`
		args = []any{
			job.MemoID,
			job.Mode,
			job.Status,
			records.FormatTime(job.CreatedAt),
			records.FormatTime(job.UpdatedAt),
			job.RetryCount,
			records.NullableString(job.LastError),
			records.NullableTime(job.NextRetryAt),
			records.NullableString(string(job.FailureReason)),
		}
	} else {
		query = `INSERT INTO ` + r.kind.Table + `
            (memo_id, status, created_at, updated_at, retry_count, last_error, next_retry_at, failure_reason)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(memo_id) DO UPDATE SET
                status = excluded.status,
                updated_at = excluded.updated_at,
                retry_count = excluded.retry_count,
                last_error = excluded.last_error,
                next_retry_at = excluded.next_retry_at,
                failure_reason = excluded.failure_reason`
		args = []any{
			job.MemoID,
			job.Status,
			records.FormatTime(job.CreatedAt),
			records.FormatTime(job.UpdatedAt),
			job.RetryCount,
			records.NullableString(job.LastError),
			records.NullableTime(job.NextRetryAt),
			records.NullableString(string(job.FailureReason)),
		}
	}
	if _, err := r.db.Conn().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save %s job: %w", r.kind.Name, err)
	}
	return nil
}

func (r *Repository) publishSnapshot(ctx context.Context) {
	snapshot, err := r.FetchAll(ctx)
	if err != nil {
		r.logger.Warn("snapshot refresh failed", logging.Error(err))
		return
	}
	r.events.Publish(snapshot)
}

func (r *Repository) columns() string {
	if r.kind.HasMode {
		return "memo_id, mode, status, created_at, updated_at, retry_count, last_error, next_retry_at, failure_reason"
	}
	return "memo_id, status, created_at, updated_at, retry_count, last_error, next_retry_at, failure_reason"
}

func (r *Repository) collect(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *Repository) scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		memoID        string
		mode          sql.NullString
		statusStr     string
		createdRaw    string
		updatedRaw    string
		retryCount    int
		lastError     sql.NullString
		nextRetryRaw  sql.NullString
		failureReason sql.NullString
	)

	var err error
	if r.kind.HasMode {
		err = scanner.Scan(&memoID, &mode, &statusStr, &createdRaw, &updatedRaw,
			&retryCount, &lastError, &nextRetryRaw, &failureReason)
	} else {
		err = scanner.Scan(&memoID, &statusStr, &createdRaw, &updatedRaw,
			&retryCount, &lastError, &nextRetryRaw, &failureReason)
	}
	if err != nil {
		return nil, err
	}

	job := &Job{
		MemoID:        memoID,
		Mode:          mode.String,
		RetryCount:    retryCount,
		LastError:     lastError.String,
		FailureReason: FailureReason(failureReason.String),
	}
	if status, ok := ParseStatus(statusStr); ok {
		job.Status = status
	}
	if created, err := records.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := records.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if nextRetryRaw.Valid {
		if retryAt, err := records.ParseTime(nextRetryRaw.String); err == nil {
			job.NextRetryAt = &retryAt
		}
	}
	return job, nil
}
