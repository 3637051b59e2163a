package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an enrichment job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusQueued:     {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// FailureReason classifies why a job attempt failed. The classification
// drives retry policy: invalid input never retries, everything else does
// until the ceiling.
type FailureReason string

const (
	FailureNetwork          FailureReason = "network"
	FailureRateLimited      FailureReason = "rate_limited"
	FailureModelUnavailable FailureReason = "model_unavailable"
	FailureInvalidInput     FailureReason = "invalid_input"
	FailureUnknown          FailureReason = "unknown"
)

// Retryable reports whether another attempt could plausibly succeed.
func (r FailureReason) Retryable() bool {
	return r != FailureInvalidInput
}

// Job is one durable enrichment attempt record. At most one job exists per
// (memo, kind); re-enqueueing an existing memo mutates the row in place.
type Job struct {
	MemoID        string
	Status        Status
	Mode          string // distill jobs only; empty for title jobs
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RetryCount    int
	LastError     string
	NextRetryAt   *time.Time
	FailureReason FailureReason
}

// Eligible reports whether the job may be handed to the runner at the given
// instant. A queued job waiting out its backoff window is not eligible.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusQueued && j.Status != StatusProcessing {
		return false
	}
	if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
		return false
	}
	return true
}

// Terminal reports whether the job will never run again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Kind describes one job table. The repository is generic over this
// descriptor; the title and distill instantiations differ only in table name
// and the presence of the mode column.
type Kind struct {
	Name    string
	Table   string
	HasMode bool
}

// AutoTitle is the job kind that proposes a memo title from its transcript.
var AutoTitle = Kind{Name: "auto_title", Table: "title_jobs"}

// AutoDistill is the job kind that produces analysis output for a memo in a
// given analysis mode.
var AutoDistill = Kind{Name: "auto_distill", Table: "distill_jobs", HasMode: true}
