// Package transcription tracks per-memo transcription state and streams
// every observed transition to subscribers.
//
// The Store layers a serialized in-memory cache over the transcriptions
// table. Reads never fail: a memo with no record is NotStarted. Writes update
// the cache and publish the change event before the durable write completes,
// trading a narrow crash window for prompt subscriber notification; see the
// SaveState doc comment.
package transcription
