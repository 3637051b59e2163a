// Package main hosts the murmurd daemon entrypoint: configuration load,
// single-instance locking, preflight, and assembly of the enrichment
// pipeline, job runners, and recordings watcher.
package main
