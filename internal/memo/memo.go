package memo

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memo is one recorded audio artifact and its metadata. The enrichment core
// only ever writes the CustomTitle field; everything else belongs to the
// recorder.
type Memo struct {
	ID              string
	Filename        string
	CustomTitle     string
	DurationSeconds float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewID mints a memo identifier.
func NewID() string {
	return uuid.NewString()
}

// DisplayTitle returns the custom title when set, else the filename.
func (m *Memo) DisplayTitle() string {
	if title := strings.TrimSpace(m.CustomTitle); title != "" {
		return title
	}
	return m.Filename
}
