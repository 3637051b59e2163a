// Package pipeline orchestrates memo enrichment: a finished recording is
// transcribed through the state store, and a completed transcript fans out
// into auto-title and auto-distill jobs whose results land in the memo
// store and the analysis cache.
package pipeline
