//go:build sqlite

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ephemeral-paste/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    ttl_seconds INTEGER,
    expires_at INTEGER,
    max_views INTEGER,
    views_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Create inserts a paste unless the id is taken.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}

	const q = `
INSERT INTO pastes (id, content, created_at, ttl_seconds, expires_at, max_views, views_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	res, err := s.db.ExecContext(ctx, q,
		paste.ID,
		[]byte(paste.Content),
		paste.CreatedAt.UTC().UnixNano(),
		nullableInt(paste.TTLSeconds),
		nullableTime(paste.ExpiresAt),
		nullableInt(paste.MaxViews),
		paste.ViewsCount,
	)
	if err != nil {
		return fmt.Errorf("create paste: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrExists
	}
	return nil
}

// Get fetches a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	const q = `
SELECT id, content, created_at, ttl_seconds, expires_at, max_views, views_count
FROM pastes WHERE id = ?;
`
	row := s.db.QueryRowContext(ctx, q, id)

	var (
		content   []byte
		createdAt int64
		ttl       sql.NullInt64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
		views     int64
	)
	if err := row.Scan(&id, &content, &createdAt, &ttl, &expiresAt, &maxViews, &views); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query paste: %w", err)
	}

	paste := &storage.Paste{
		ID:         id,
		Content:    string(content),
		CreatedAt:  time.Unix(0, createdAt).UTC(),
		ViewsCount: views,
	}
	if ttl.Valid {
		v := ttl.Int64
		paste.TTLSeconds = &v
	}
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		paste.ExpiresAt = &t
	}
	if maxViews.Valid {
		v := maxViews.Int64
		paste.MaxViews = &v
	}
	return paste, nil
}

// IncrementViews adds one view in a single conditional UPDATE.
func (s *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	const q = `
UPDATE pastes SET views_count = views_count + 1
WHERE id = ? AND (max_views IS NULL OR views_count < max_views)
RETURNING views_count;
`
	var views int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&views)
	if err == nil {
		return views, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment views: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM pastes WHERE id = ?;`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query paste: %w", err)
	}
	return 0, storage.ErrViewLimitReached
}

// DeleteExpired removes all expired pastes.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at <= ?;`
	res, err := s.db.ExecContext(ctx, q, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
