// Package enrich holds the external model collaborators: audio
// transcription and chat-completion clients for title and distill
// generation. Failures carry sentinel markers that map onto the job
// failure taxonomy, so the pipeline decides retry policy without parsing
// error strings.
package enrich
