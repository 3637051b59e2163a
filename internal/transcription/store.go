package transcription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/bus"
	"murmur/internal/logging"
	"murmur/internal/records"
)

// Store owns the transcription state of every memo. An in-memory cache sits
// in front of the transcriptions table; the table is authoritative and the
// cache rebuilds lazily through ordinary miss-then-load reads after a
// restart. All operations serialize on one mutex so no reader ever observes
// a half-applied transition, and events reach subscribers in the order the
// writer issued them.
type Store struct {
	db     *records.DB
	logger *slog.Logger
	events *bus.Bus[Change]

	mu    sync.Mutex
	cache map[string]State
}

// NewStore constructs the transcription state store.
func NewStore(db *records.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logging.NewComponentLogger(logger, "transcription"),
		events: bus.New[Change](0),
		cache:  make(map[string]State),
	}
}

// Close shuts down the change event bus.
func (s *Store) Close() {
	s.events.Close()
}

// GetState returns the current state for a memo. Absence is a valid answer:
// memos never transcribed report NotStarted. The store never surfaces read
// errors; it degrades to the cached value or the NotStarted default and logs.
func (s *Store) GetState(ctx context.Context, memoID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, memoID)
}

// GetStates resolves N memos with at most one bulk read for the cache-missed
// ids. The result for each id is exactly what GetState would have returned.
func (s *Store) GetStates(ctx context.Context, memoIDs []string) map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]State, len(memoIDs))
	var missed []string
	for _, id := range memoIDs {
		if state, ok := s.cache[id]; ok {
			result[id] = state
		} else {
			missed = append(missed, id)
		}
	}
	if len(missed) == 0 {
		return result
	}

	loaded, err := s.loadStates(ctx, missed)
	if err != nil {
		s.logger.Warn("bulk transcription load failed",
			logging.Error(err),
			logging.Int("missed", len(missed)))
		loaded = nil
	}
	for _, id := range missed {
		state, ok := loaded[id]
		if !ok {
			state = NotStarted()
		}
		s.cache[id] = state
		result[id] = state
		s.events.Publish(Change{MemoID: id, Current: state})
	}
	return result
}

// SaveState records a transition. The cache is updated and the change event
// published before the durable write, so subscribers see the transition
// promptly; a failed write is logged and the in-memory state stands. A
// process crash between those steps can leave the store one transition
// behind, which is acceptable for a single-process deployment.
func (s *Store) SaveState(ctx context.Context, memoID string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *State
	if prev, ok := s.cache[memoID]; ok {
		prevCopy := prev
		previous = &prevCopy
	}
	s.cache[memoID] = state
	s.events.Publish(Change{MemoID: memoID, Previous: previous, Current: state})

	if err := s.persistLocked(ctx, memoID, state); err != nil {
		s.logger.Error("persist transcription state failed",
			logging.String(logging.FieldMemoID, memoID),
			logging.String("status", string(state.Status)),
			logging.Error(err))
	}
}

// DeleteState removes a memo's transcription record from both tiers. When a
// previous state was known, subscribers observe a uniform transition to
// NotStarted instead of a bespoke deletion event.
func (s *Store) DeleteState(ctx context.Context, memoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.cache[memoID]
	delete(s.cache, memoID)

	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM transcriptions WHERE memo_id = ?`, memoID)
	if err != nil {
		return fmt.Errorf("delete transcription state: %w", err)
	}
	if !existed {
		affected, affErr := res.RowsAffected()
		if affErr == nil && affected > 0 {
			existed = true
		}
	}
	if existed {
		var prev *State
		if previous.Status != "" {
			prevCopy := previous
			prev = &prevCopy
		}
		s.events.Publish(Change{MemoID: memoID, Previous: prev, Current: NotStarted()})
	}
	return nil
}

// Subscribe returns a stream of every state change from this point onward.
func (s *Store) Subscribe() *bus.Subscription[Change] {
	return s.events.Subscribe()
}

// SubscribeMemo filters the change stream to a single memo.
func (s *Store) SubscribeMemo(memoID string) *bus.Subscription[Change] {
	return s.events.SubscribeFunc(func(c Change) bool {
		return c.MemoID == memoID
	})
}

// resolveLocked returns the cached state or loads it, defaulting to
// NotStarted, and publishes the discovery event for cache misses.
func (s *Store) resolveLocked(ctx context.Context, memoID string) State {
	if state, ok := s.cache[memoID]; ok {
		return state
	}

	state, found, err := s.loadState(ctx, memoID)
	if err != nil {
		s.logger.Warn("transcription load failed",
			logging.String(logging.FieldMemoID, memoID),
			logging.Error(err))
		found = false
	}
	if !found {
		state = NotStarted()
	}
	s.cache[memoID] = state
	s.events.Publish(Change{MemoID: memoID, Current: state})
	return state
}

func (s *Store) persistLocked(ctx context.Context, memoID string, state State) error {
	_, err := s.db.Conn().ExecContext(
		ctx,
		`INSERT INTO transcriptions (memo_id, status, text, error_message, last_updated)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(memo_id) DO UPDATE SET
             status = excluded.status,
             text = excluded.text,
             error_message = excluded.error_message,
             last_updated = excluded.last_updated`,
		memoID,
		state.Status,
		records.NullableString(state.Text),
		records.NullableString(state.ErrorMessage),
		records.FormatTime(time.Now().UTC()),
	)
	return err
}

func (s *Store) loadState(ctx context.Context, memoID string) (State, bool, error) {
	row := s.db.Conn().QueryRowContext(
		ctx,
		`SELECT status, text, error_message FROM transcriptions WHERE memo_id = ?`,
		memoID,
	)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("load transcription state: %w", err)
	}
	return state, true, nil
}

func (s *Store) loadStates(ctx context.Context, memoIDs []string) (map[string]State, error) {
	args := make([]any, len(memoIDs))
	for i, id := range memoIDs {
		args[i] = id
	}
	rows, err := s.db.Conn().QueryContext(
		ctx,
		`SELECT memo_id, status, text, error_message FROM transcriptions
         WHERE memo_id IN (`+records.Placeholders(len(memoIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("bulk load transcription states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]State, len(memoIDs))
	for rows.Next() {
		var (
			memoID    string
			statusStr string
			text      sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(&memoID, &statusStr, &text, &errMsg); err != nil {
			return nil, err
		}
		states[memoID] = stateFromRow(statusStr, text.String, errMsg.String)
	}
	return states, rows.Err()
}

func scanState(scanner interface{ Scan(dest ...any) error }) (State, error) {
	var (
		statusStr string
		text      sql.NullString
		errMsg    sql.NullString
	)
	if err := scanner.Scan(&statusStr, &text, &errMsg); err != nil {
		return State{}, err
	}
	return stateFromRow(statusStr, text.String, errMsg.String), nil
}

func stateFromRow(statusStr, text, errMsg string) State {
	status, ok := ParseStatus(statusStr)
	if !ok {
		status = StatusNotStarted
	}
	return State{Status: status, Text: text, ErrorMessage: errMsg}
}
