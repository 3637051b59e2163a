// Package logging builds the slog loggers used across murmur.
//
// It provides a console handler with terminal-aware color, a JSON handler for
// machine-readable output, typed attribute helpers, and component child
// loggers so every subsystem tags its lines consistently. Tests use
// NewNop() to silence output.
package logging
