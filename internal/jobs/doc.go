// Package jobs persists retryable background work keyed by memo. A
// Repository is instantiated per job kind (auto-title, auto-distill) over
// its own table; the schema and retry semantics are otherwise identical.
// Failed attempts requeue with capped exponential backoff until the retry
// ceiling, after which the job is failed permanently with a classification
// of its last error.
package jobs
