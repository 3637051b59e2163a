package transcription

import "strings"

// Status enumerates the lifecycle of a memo's transcription.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusNotStarted: {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// State is the transcription state of one memo. Text is meaningful only for
// Completed, ErrorMessage only for Failed. Every transition is legal: a
// Failed memo re-enters InProgress on retry and terminal states remain
// overwritable.
type State struct {
	Status       Status
	Text         string
	ErrorMessage string
}

// NotStarted is the implicit state of any memo never transcribed.
func NotStarted() State {
	return State{Status: StatusNotStarted}
}

// InProgress marks a transcription attempt as running.
func InProgress() State {
	return State{Status: StatusInProgress}
}

// Completed carries the final transcript text.
func Completed(text string) State {
	return State{Status: StatusCompleted, Text: text}
}

// Failed carries the captured error message of the last attempt.
func Failed(message string) State {
	return State{Status: StatusFailed, ErrorMessage: message}
}

// Equal reports whether two states are indistinguishable.
func (s State) Equal(other State) bool {
	return s.Status == other.Status && s.Text == other.Text && s.ErrorMessage == other.ErrorMessage
}

// Terminal reports whether the state is a resting point of the machine.
// Terminal states still get overwritten when the user retries.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Change is the event published for every observed transition. Previous is
// nil when the store first discovers a memo's state (cache miss load or
// implicit NotStarted default).
type Change struct {
	MemoID   string
	Previous *State
	Current  State
}
