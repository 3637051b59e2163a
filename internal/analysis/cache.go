package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"murmur/internal/logging"
	"murmur/internal/records"
)

type cacheKey struct {
	memoID string
	mode   Mode
}

// Cache holds analysis results in two tiers: an in-memory map of the
// current envelope per (memo, mode), backed by the analysis_results table.
// The memory tier is always at least as fresh as the store; a miss falls
// through to the store before being treated as absent. Every save appends
// a store row, so the table doubles as the per-memo history ledger.
type Cache struct {
	db     *records.DB
	logger *slog.Logger

	mu  sync.RWMutex
	mem map[cacheKey]Envelope
}

// NewCache constructs an analysis cache over the record store.
func NewCache(db *records.DB, logger *slog.Logger) *Cache {
	return &Cache{
		db:     db,
		logger: logging.NewComponentLogger(logger, "analysis"),
		mem:    make(map[cacheKey]Envelope),
	}
}

// Save overwrites the current slot for (memo, mode) and appends a history
// row. The memory tier updates before the store write so concurrent readers
// see the new value immediately.
func (c *Cache) Save(ctx context.Context, memoID string, env Envelope) error {
	if memoID == "" {
		return errors.New("memo id is required")
	}
	if env.Mode == "" {
		return errors.New("analysis mode is required")
	}

	c.mu.Lock()
	c.mem[cacheKey{memoID, env.Mode}] = env
	c.mu.Unlock()

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode analysis envelope: %w", err)
	}
	_, err = c.db.Conn().ExecContext(
		ctx,
		`INSERT INTO analysis_results (memo_id, mode, payload, created_at) VALUES (?, ?, ?, ?)`,
		memoID,
		string(env.Mode),
		raw,
		records.FormatTime(env.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("persist analysis result: %w", err)
	}
	return nil
}

// Get returns the current payload for (memo, mode) decoded into T. A memory
// hit returns immediately; a miss loads the most recent store row and
// repopulates the memory tier. Absent records and undecodable payloads both
// report absent; decode failures are logged, never surfaced as errors.
func Get[T any](ctx context.Context, c *Cache, memoID string, mode Mode) (T, bool) {
	var zero T
	env, ok := c.envelope(ctx, memoID, mode)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(env.Payload, &value); err != nil {
		c.logger.Warn("analysis payload decode failed",
			logging.String(logging.FieldMemoID, memoID),
			logging.String("mode", string(mode)),
			logging.Error(err))
		return zero, false
	}
	return value, true
}

// GetEnvelope returns the current envelope for (memo, mode) without
// decoding its payload.
func (c *Cache) GetEnvelope(ctx context.Context, memoID string, mode Mode) (Envelope, bool) {
	return c.envelope(ctx, memoID, mode)
}

func (c *Cache) envelope(ctx context.Context, memoID string, mode Mode) (Envelope, bool) {
	c.mu.RLock()
	env, ok := c.mem[cacheKey{memoID, mode}]
	c.mu.RUnlock()
	if ok {
		return env, true
	}

	row := c.db.Conn().QueryRowContext(
		ctx,
		`SELECT payload FROM analysis_results WHERE memo_id = ? AND mode = ? ORDER BY id DESC LIMIT 1`,
		memoID,
		string(mode),
	)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("analysis store read failed",
				logging.String(logging.FieldMemoID, memoID),
				logging.String("mode", string(mode)),
				logging.Error(err))
		}
		return Envelope{}, false
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("analysis envelope decode failed",
			logging.String(logging.FieldMemoID, memoID),
			logging.String("mode", string(mode)),
			logging.Error(err))
		return Envelope{}, false
	}

	c.mu.Lock()
	// A writer may have landed a fresher value while we read the store.
	if current, exists := c.mem[cacheKey{memoID, mode}]; exists {
		env = current
	} else {
		c.mem[cacheKey{memoID, mode}] = env
	}
	c.mu.Unlock()
	return env, true
}

// Has reports whether a result exists in either tier, without decoding.
func (c *Cache) Has(ctx context.Context, memoID string, mode Mode) bool {
	c.mu.RLock()
	_, ok := c.mem[cacheKey{memoID, mode}]
	c.mu.RUnlock()
	if ok {
		return true
	}

	row := c.db.Conn().QueryRowContext(
		ctx,
		`SELECT 1 FROM analysis_results WHERE memo_id = ? AND mode = ? LIMIT 1`,
		memoID,
		string(mode),
	)
	var marker int
	return row.Scan(&marker) == nil
}

// Delete removes one mode's results from both tiers, pruning its history
// rows.
func (c *Cache) Delete(ctx context.Context, memoID string, mode Mode) error {
	c.mu.Lock()
	delete(c.mem, cacheKey{memoID, mode})
	c.mu.Unlock()

	_, err := c.db.Conn().ExecContext(
		ctx,
		`DELETE FROM analysis_results WHERE memo_id = ? AND mode = ?`,
		memoID,
		string(mode),
	)
	if err != nil {
		return fmt.Errorf("delete analysis results: %w", err)
	}
	return nil
}

// DeleteAll removes every analysis result for a memo from both tiers.
func (c *Cache) DeleteAll(ctx context.Context, memoID string) error {
	c.mu.Lock()
	for key := range c.mem {
		if key.memoID == memoID {
			delete(c.mem, key)
		}
	}
	c.mu.Unlock()

	_, err := c.db.Conn().ExecContext(ctx, `DELETE FROM analysis_results WHERE memo_id = ?`, memoID)
	if err != nil {
		return fmt.Errorf("delete analysis results: %w", err)
	}
	return nil
}

// Entry is one mode's standing for a memo: the cached envelope when the
// memory tier holds it, or a store-only marker when we know a result exists
// without having decoded it.
type Entry struct {
	Envelope *Envelope
	InStore  bool
}

// GetAll reports, for every known mode with any result, either the cached
// envelope or a store marker. It never hydrates payloads from the store;
// rendering "which analyses exist" stays cheap.
func (c *Cache) GetAll(ctx context.Context, memoID string) map[Mode]Entry {
	out := make(map[Mode]Entry)
	for _, mode := range KnownModes {
		c.mu.RLock()
		env, cached := c.mem[cacheKey{memoID, mode}]
		c.mu.RUnlock()
		if cached {
			out[mode] = Entry{Envelope: &env, InStore: true}
			continue
		}
		if c.Has(ctx, memoID, mode) {
			out[mode] = Entry{InStore: true}
		}
	}
	return out
}

// Clear wipes the memory tier. Persistent results remain; subsequent reads
// fall through to the store.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.mem = make(map[cacheKey]Envelope)
	c.mu.Unlock()
}

// Size returns the number of memory-tier entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// History returns the ordered (mode, timestamp) ledger for a memo,
// reconstructed from the store. A memo with no rows yields nil, so deleted
// memos leave no empty ledger behind.
func (c *Cache) History(ctx context.Context, memoID string) ([]HistoryEntry, error) {
	rows, err := c.db.Conn().QueryContext(
		ctx,
		`SELECT mode, created_at FROM analysis_results WHERE memo_id = ? ORDER BY id`,
		memoID,
	)
	if err != nil {
		return nil, fmt.Errorf("load analysis history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var modeStr, createdRaw string
		if err := rows.Scan(&modeStr, &createdRaw); err != nil {
			return nil, err
		}
		entry := HistoryEntry{Mode: Mode(modeStr)}
		if ts, err := records.ParseTime(createdRaw); err == nil {
			entry.Timestamp = ts
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}
