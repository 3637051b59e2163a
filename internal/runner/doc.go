// Package runner polls a job repository and executes attempts, applying
// the retry policy to failures. One runner is started per job kind.
package runner
