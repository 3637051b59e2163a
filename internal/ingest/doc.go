// Package ingest watches the recordings directory and registers finished
// audio files with the pipeline.
package ingest
