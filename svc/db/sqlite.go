package db

import (
	"context"
	"database/sql"
	"time"

	"clipd/pkg/domain"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultQueryTimeout = 5 * time.Second

	sweepBatchSize     = 100
	maxSweepIterations = 10000
)

// SQLite is the clip store. Expiration filtering is deliberately not done
// here on reads: Get returns the full record regardless of expiry and the
// clip service decides visibility.
type SQLite struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	query := `
	CREATE TABLE IF NOT EXISTS clips (
		short_code TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		posted_at DATETIME NOT NULL,
		expires_at DATETIME,
		hits INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_clips_expires_at ON clips(expires_at);
	`
	_, err = s.db.Exec(query)
	return err
}

// Insert persists a new clip. A primary key collision on short_code comes
// back as domain.ErrCodeConflict so the service can regenerate and retry.
func (s *SQLite) Insert(ctx context.Context, c *domain.Clip) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO clips (short_code, content, title, password_hash, posted_at, expires_at, hits)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var expiresAt interface{}
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.UTC()
	}
	_, err := s.db.ExecContext(queryCtx, q,
		c.ShortCode.String(), c.Content, c.Title, c.PasswordHash, c.PostedAt.UTC(), expiresAt, c.Hits,
	)
	if isConstraintErr(err) {
		return domain.ErrCodeConflict
	}
	return errors.Wrap(err, "db insert")
}

func (s *SQLite) Get(ctx context.Context, code domain.ShortCode) (*domain.Clip, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT short_code, content, title, password_hash, posted_at, expires_at, hits
	FROM clips WHERE short_code = ?
	`
	var (
		c         domain.Clip
		rawCode   string
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(queryCtx, q, code.String()).Scan(
		&rawCode, &c.Content, &c.Title, &c.PasswordHash, &c.PostedAt, &expiresAt, &c.Hits,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrClipNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	c.ShortCode = domain.ShortCodeFromString(rawCode)
	c.PostedAt = c.PostedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		c.ExpiresAt = &t
	}
	return &c, nil
}

// AddHits atomically adds delta to the stored hit counter. The addition
// happens inside the UPDATE so concurrent flushes cannot lose increments.
func (s *SQLite) AddHits(ctx context.Context, code domain.ShortCode, delta int64) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `UPDATE clips SET hits = hits + ? WHERE short_code = ?`
	res, err := s.db.ExecContext(queryCtx, q, delta, code.String())
	if err != nil {
		return errors.Wrap(err, "add hits")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "add hits rows affected")
	}
	if affected == 0 {
		return domain.ErrClipNotFound
	}
	return nil
}

// DeleteExpired removes every clip whose expiry is at or before now, in
// small batches so a large backlog cannot hold a write lock for long.
// Calling it with nothing expired is a no-op success.
func (s *SQLite) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	totalDeleted := 0
	for i := 0; i < maxSweepIterations; i++ {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}
		queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		result, err := s.db.ExecContext(queryCtx, `
			DELETE FROM clips
			WHERE short_code IN (
				SELECT short_code FROM clips
				WHERE expires_at IS NOT NULL AND expires_at <= ?
				LIMIT ?
			)
		`, now.UTC(), sweepBatchSize)
		cancel()
		if err != nil {
			return totalDeleted, errors.Wrap(err, "sweep batch failed")
		}
		deleted, _ := result.RowsAffected()
		totalDeleted += int(deleted)
		if deleted < sweepBatchSize {
			break
		}
	}
	return totalDeleted, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
