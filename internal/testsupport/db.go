package testsupport

import (
	"testing"

	"murmur/internal/config"
	"murmur/internal/records"
)

// MustOpenDB opens the records database for a test config and closes it when
// the test finishes.
func MustOpenDB(t testing.TB, cfg *config.Config) *records.DB {
	t.Helper()

	db, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("open records db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
