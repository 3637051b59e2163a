package records_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/records"
)

func TestOpenAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.db")
	db, err := records.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, table := range []string{"memos", "transcriptions", "title_jobs", "distill_jobs", "analysis_results"} {
		var name string
		row := db.Conn().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&name); err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.db")
	db, err := records.OpenPath(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	db, err = records.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping after reopen failed: %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	parsed, err := records.ParseTime(records.FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("round trip mismatch: %v != %v", parsed, now)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := records.Placeholders(0); got != "" {
		t.Fatalf("expected empty placeholders, got %q", got)
	}
	if got := records.Placeholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders: %q", got)
	}
}
