// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Per-category toggles let operators subscribe to transcription, enrichment,
// or error events independently.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the simple Service interface.
package notifications
