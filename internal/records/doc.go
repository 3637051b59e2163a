// Package records owns the SQLite database backing every durable store in
// murmur: memo rows, transcription state, the two job tables, and analysis
// results.
//
// It applies connection pragmas and versioned migrations on open, and exposes
// the shared connection plus the timestamp/placeholder helpers the stores
// use. The database is the single source of truth; in-memory caches layered
// on top are derived state and rebuild lazily after a restart.
//
// Schema changes are additive migration files under migrations/; never edit
// an applied migration in place.
package records
