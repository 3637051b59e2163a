// Package main hosts the murmur CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces pipeline inspection (memos, jobs,
// status), job retries, configuration scaffolding, and notification tests.
// It centralizes configuration resolution and record-store access so
// subcommands can focus on presentation.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
