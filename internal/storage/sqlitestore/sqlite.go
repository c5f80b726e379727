package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"pastebin-lite/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite has a single writer; one connection keeps writes from racing
	// into SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initialize(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	// Timestamps are unix nanoseconds so comparisons are numeric.
	schema := `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    max_views INTEGER,
    views INTEGER NOT NULL DEFAULT 0,
    password_hash TEXT,
    size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
`
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Create inserts a paste; an existing id yields storage.ErrExists.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}

	const q = `
INSERT INTO pastes (id, content, created_at, expires_at, max_views, views, password_hash, size)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	res, err := s.db.ExecContext(ctx, q,
		paste.ID,
		[]byte(paste.Content),
		paste.CreatedAt.UTC().UnixNano(),
		nullableTime(paste.ExpiresAt),
		nullableInt(paste.MaxViews),
		nullString(paste.PasswordHash),
		paste.Size,
	)
	if err != nil {
		return errors.Wrap(err, "save paste")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return storage.ErrExists
	}
	return nil
}

// Get fetches a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	const q = `
SELECT id, content, created_at, expires_at, max_views, views, password_hash, size
FROM pastes WHERE id = ?;
`
	row := s.db.QueryRowContext(ctx, q, id)

	var (
		content   []byte
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
		views     int
		password  sql.NullString
		size      int
	)
	if err := row.Scan(&id, &content, &createdAt, &expiresAt, &maxViews, &views, &password, &size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "query paste")
	}

	paste := &storage.Paste{
		ID:        id,
		Content:   string(content),
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Views:     views,
		Size:      size,
	}
	if expiresAt.Valid {
		paste.ExpiresAt = time.Unix(0, expiresAt.Int64).UTC()
	}
	if maxViews.Valid {
		paste.MaxViews = int(maxViews.Int64)
	}
	if password.Valid {
		paste.PasswordHash = password.String
	}
	return paste, nil
}

// IncrementView bumps the counter with one conditional UPDATE, so the limit
// check and the write cannot be split by a concurrent caller.
func (s *Store) IncrementView(ctx context.Context, id string, now time.Time) (int, error) {
	const q = `
UPDATE pastes SET views = views + 1
WHERE id = ?
  AND (expires_at IS NULL OR expires_at > ?)
  AND (max_views IS NULL OR views < max_views)
RETURNING views;
`
	var views int
	err := s.db.QueryRowContext(ctx, q, id, now.UTC().UnixNano()).Scan(&views)
	if err == nil {
		return views, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "increment views")
	}
	return 0, s.refusal(ctx, id, now)
}

// refusal explains why the conditional update matched no row.
func (s *Store) refusal(ctx context.Context, id string, now time.Time) error {
	paste, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if paste.ExpiredAt(now) {
		return storage.ErrExpired
	}
	return storage.ErrViewLimit
}

// DeleteExpired removes expired and view-exhausted pastes.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `
DELETE FROM pastes
WHERE (expires_at IS NOT NULL AND expires_at <= ?)
   OR (max_views IS NOT NULL AND views >= max_views);
`
	res, err := s.db.ExecContext(ctx, q, now.UTC().UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return int(rows), nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	var result int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}

func nullableInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
