package memo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/logging"
	"murmur/internal/records"
)

// Store persists memo records.
type Store struct {
	db     *records.DB
	logger *slog.Logger
}

// NewStore constructs a memo store over the shared database.
func NewStore(db *records.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logging.NewComponentLogger(logger, "memo"),
	}
}

// Create inserts a new memo for a finished recording.
func (s *Store) Create(ctx context.Context, filename string, durationSeconds float64) (*Memo, error) {
	if filename == "" {
		return nil, errors.New("filename is required")
	}
	now := time.Now().UTC()
	m := &Memo{
		ID:              NewID(),
		Filename:        filename,
		DurationSeconds: durationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := s.db.Conn().ExecContext(
		ctx,
		`INSERT INTO memos (id, filename, custom_title, duration_seconds, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Filename,
		records.NullableString(m.CustomTitle),
		m.DurationSeconds,
		records.FormatTime(m.CreatedAt),
		records.FormatTime(m.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert memo: %w", err)
	}
	return m, nil
}

// GetByID fetches a memo by identifier, returning nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Memo, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+memoColumns+` FROM memos WHERE id = ?`, id)
	m, err := scanMemo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memo: %w", err)
	}
	return m, nil
}

// List returns all memos ordered by creation time ascending.
func (s *Store) List(ctx context.Context) ([]*Memo, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+memoColumns+` FROM memos ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	defer rows.Close()

	var memos []*Memo
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

// SetTitle writes the custom title field, the only memo field the enrichment
// core owns.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.Conn().ExecContext(
		ctx,
		`UPDATE memos SET custom_title = ?, updated_at = ? WHERE id = ?`,
		records.NullableString(title),
		records.FormatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set memo title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("memo %s not found", id)
	}
	s.logger.Debug("memo title updated", logging.String(logging.FieldMemoID, id), logging.String("title", title))
	return nil
}

// Delete removes a memo row. Cascade cleanup of transcription, job, and
// analysis rows is coordinated by the pipeline.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM memos WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete memo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const memoColumns = "id, filename, custom_title, duration_seconds, created_at, updated_at"

func scanMemo(scanner interface{ Scan(dest ...any) error }) (*Memo, error) {
	var (
		id          string
		filename    string
		customTitle sql.NullString
		duration    sql.NullFloat64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &filename, &customTitle, &duration, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	m := &Memo{
		ID:              id,
		Filename:        filename,
		CustomTitle:     customTitle.String,
		DurationSeconds: duration.Float64,
	}
	if created, err := records.ParseTime(createdRaw); err == nil {
		m.CreatedAt = created
	}
	if updated, err := records.ParseTime(updatedRaw); err == nil {
		m.UpdatedAt = updated
	}
	return m, nil
}
