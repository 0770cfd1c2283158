// Package storage persists cursors, subscriptions, and comment counts in
// Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/codeGROOVE-dev/retry"
	_ "github.com/lib/pq" // postgres driver
)

// SchemaVersion marks the store layout this build expects. A store
// initialized by a different version is fatal at startup.
const SchemaVersion = "1.0.0"

const versionKey = "version"

// VersionMismatchError indicates the persisted store was initialized by a
// different build.
type VersionMismatchError struct {
	Built  string
	Stored string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("store version mismatch (built: %s; stored: %s)", e.Built, e.Stored)
}

// IsVersionMismatch checks if an error is a VersionMismatchError.
func IsVersionMismatch(err error) bool {
	var mismatch *VersionMismatchError
	return errors.As(err, &mismatch)
}

// Store wraps the Postgres connection.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	builder sq.StatementBuilderType
}

// Open connects to Postgres and verifies connectivity.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the tables if absent and checks the persisted schema
// version against this build. Runs before any stream processing.
func (s *Store) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS kv_store(
    key VARCHAR(64),
    value VARCHAR(256) NOT NULL,
        CONSTRAINT kv_store_pkey PRIMARY KEY(key));

CREATE TABLE IF NOT EXISTS subscription(
    submission_id VARCHAR(16),
    user_name VARCHAR(256),
        CONSTRAINT subscription_pkey PRIMARY KEY(submission_id, user_name));

CREATE TABLE IF NOT EXISTS comment_count(
    submission_id VARCHAR(16),
    submission_date DATE,
    comment_count INTEGER DEFAULT 0,
        CONSTRAINT comment_count_pkey PRIMARY KEY(submission_id, submission_date));
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	stored, ok, err := s.getKV(ctx, versionKey)
	if err != nil {
		return fmt.Errorf("read stored version: %w", err)
	}
	if !ok {
		if err := s.setKV(ctx, versionKey, SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		s.logger.Info("Store initialized", "version", SchemaVersion)
		return nil
	}
	if stored != SchemaVersion {
		return &VersionMismatchError{Built: SchemaVersion, Stored: stored}
	}
	return nil
}

// CursorKey builds the kv_store key for one stream's cursor row.
func CursorKey(subreddit, path string) string {
	return fmt.Sprintf("%s_%s_after_full_id", subreddit, path)
}

// LoadCursor reads the persisted cursor for a stream key. The second
// return reports whether a cursor row exists.
func (s *Store) LoadCursor(ctx context.Context, streamKey string) (string, bool, error) {
	return s.getKV(ctx, streamKey)
}

// SaveCursor upserts the cursor row for a stream key. Idempotent; safe to
// call repeatedly with the same or advancing values.
func (s *Store) SaveCursor(ctx context.Context, streamKey, afterFullID string) error {
	err := retry.Do(
		func() error { return s.setKV(ctx, streamKey, afterFullID) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying cursor save after error", "attempt", n, "key", streamKey, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save cursor after retries: %w", err)
	}
	return nil
}

// Subscribe records a (submission, user) pair; duplicates are ignored.
func (s *Store) Subscribe(ctx context.Context, submissionID, userName string) error {
	query := s.builder.
		Insert("subscription").
		Columns("submission_id", "user_name").
		Values(submissionID, userName).
		Suffix("ON CONFLICT ON CONSTRAINT subscription_pkey DO NOTHING")

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	s.logger.Debug("Subscription recorded", "submission_id", submissionID, "user", userName)
	return nil
}

// Unsubscribe removes a (submission, user) pair; removing a missing pair
// is not an error.
func (s *Store) Unsubscribe(ctx context.Context, submissionID, userName string) error {
	query := s.builder.
		Delete("subscription").
		Where(sq.Eq{"submission_id": submissionID, "user_name": userName})

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.logger.Debug("Subscription removed", "submission_id", submissionID, "user", userName)
	return nil
}

// Subscribers lists the users subscribed to a submission.
func (s *Store) Subscribers(ctx context.Context, submissionID string) ([]string, error) {
	query := s.builder.
		Select("user_name").
		From("subscription").
		Where(sq.Eq{"submission_id": submissionID}).
		OrderBy("user_name")

	rows, err := query.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return users, nil
}

// CountComment increments the per-(submission, bucket) counter inside one
// transaction: the row is created at zero on first sight, then bumped.
func (s *Store) CountComment(ctx context.Context, submissionID string, bucket time.Time) error {
	err := retry.Do(
		func() error { return s.countComment(ctx, submissionID, bucket) },
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying comment count after error", "attempt", n, "submission_id", submissionID, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("count comment after retries: %w", err)
	}
	return nil
}

func (s *Store) countComment(ctx context.Context, submissionID string, bucket time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := s.builder.
		Insert("comment_count").
		Columns("submission_id", "submission_date").
		Values(submissionID, bucket).
		Suffix("ON CONFLICT ON CONSTRAINT comment_count_pkey DO NOTHING")
	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("init counter row: %w", err)
	}

	update := s.builder.
		Update("comment_count").
		Set("comment_count", sq.Expr("comment_count + 1")).
		Where(sq.Eq{"submission_id": submissionID, "submission_date": bucket})
	if _, err := update.RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) getKV(ctx context.Context, key string) (string, bool, error) {
	query := s.builder.
		Select("value").
		From("kv_store").
		Where(sq.Eq{"key": key})

	var value string
	err := query.RunWith(s.db).QueryRowContext(ctx).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setKV(ctx context.Context, key, value string) error {
	query := s.builder.
		Insert("kv_store").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT ON CONSTRAINT kv_store_pkey DO UPDATE SET value = EXCLUDED.value")

	if _, err := query.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}
