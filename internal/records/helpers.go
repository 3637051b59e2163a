package records

import (
	"errors"
	"time"
)

// NullableString maps empty strings to NULL for insert/update arguments.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps nil times to NULL, otherwise formats as RFC3339Nano UTC.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// FormatTime renders a timestamp the way every table in this module stores it.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses timestamps written by FormatTime, tolerating the
// second-precision form older rows may carry.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// Placeholders renders a comma-separated list of count SQL placeholders.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
