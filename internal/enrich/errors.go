package enrich

import (
	"context"
	"errors"
	"net"
	"net/url"

	"murmur/internal/jobs"
)

// Sentinel markers tagged onto enrichment errors so callers can classify a
// failed attempt without inspecting message text.
var (
	ErrTransient        = errors.New("transient failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidInput     = errors.New("invalid input")
)

// Classify maps an enrichment error to the job failure taxonomy. Unknown
// errors classify as retryable unknown rather than terminal, so a novel
// failure shape never burns a memo permanently on its first sighting.
func Classify(err error) jobs.FailureReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return jobs.FailureInvalidInput
	case errors.Is(err, ErrRateLimited):
		return jobs.FailureRateLimited
	case errors.Is(err, ErrModelUnavailable):
		return jobs.FailureModelUnavailable
	case errors.Is(err, ErrTransient):
		return jobs.FailureNetwork
	case isNetworkError(err):
		return jobs.FailureNetwork
	default:
		return jobs.FailureUnknown
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
