package analysis

import (
	"encoding/json"
	"time"
)

// Mode names a kind of AI-generated insight over a memo's transcript.
type Mode string

const (
	ModeSummary  Mode = "summary"
	ModeInsights Mode = "insights"
)

// KnownModes lists every mode GetAll reports on.
var KnownModes = []Mode{ModeSummary, ModeInsights}

// ParseMode validates a mode string.
func ParseMode(value string) (Mode, bool) {
	for _, mode := range KnownModes {
		if string(mode) == value {
			return mode, true
		}
	}
	return "", false
}

// Envelope wraps a model's output with the metadata of the call that
// produced it. Payload stays opaque until a caller decodes it into the
// shape it expects.
type Envelope struct {
	Mode        Mode            `json:"mode"`
	Model       string          `json:"model"`
	LatencyMS   int64           `json:"latencyMs"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope around an already-serialized payload.
func NewEnvelope(mode Mode, model string, latency time.Duration, payload json.RawMessage) Envelope {
	return Envelope{
		Mode:        mode,
		Model:       model,
		LatencyMS:   latency.Milliseconds(),
		GeneratedAt: time.Now().UTC(),
		Payload:     payload,
	}
}

// HistoryEntry records that a mode was computed for a memo at a time.
type HistoryEntry struct {
	Mode      Mode
	Timestamp time.Time
}
