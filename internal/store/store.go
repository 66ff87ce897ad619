// Package store is the sole persisted source of truth for reminders.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersion  = 1
	schemaChecksum = "rd-v1-2026-08-28-reminders"
)

// ErrPersistence marks store I/O failures. Callers check it with errors.Is;
// an operation that returns it has made no partial write.
var ErrPersistence = errors.New("persistence failure")

// Reminder is a persisted reminder row.
type Reminder struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	PushTime  time.Time `json:"push_time"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pending reports whether the reminder still needs a queue entry.
func (r Reminder) Pending() bool {
	return !r.Delivered
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".remindd", "remindd.db")
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// retryOnBusy retries f when SQLite returns BUSY or LOCKED, using
// exponential backoff with bounded jitter on top of the driver's
// busy_timeout.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		// Add jitter: ±25% of delay.
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// isSQLiteBusy checks if an error is a SQLite BUSY (5) or LOCKED (6) error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") || // SQLITE_BUSY
		strings.Contains(msg, "(6)") // SQLITE_LOCKED
}

func (s *Store) configurePragmas(ctx context.Context) error {
	pragma := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragma {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersion {
		return fmt.Errorf("db schema version %d is newer than supported %d", maxVersion, schemaVersion)
	}
	if maxVersion == schemaVersion {
		var existingChecksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersion).Scan(&existingChecksum); err != nil {
			return fmt.Errorf("read schema migration checksum: %w", err)
		}
		if existingChecksum != schemaChecksum {
			return fmt.Errorf("schema checksum mismatch for version %d: got %q want %q", schemaVersion, existingChecksum, schemaChecksum)
		}
		return tx.Commit()
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL CHECK(length(title) > 0),
			push_time DATETIME NOT NULL,
			delivered INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_pending ON reminders(delivered, push_time);`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO schema_migrations (version, checksum)
		VALUES (?, ?);
	`, schemaVersion, schemaChecksum); err != nil {
		return fmt.Errorf("insert schema migration ledger: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// Create inserts a new reminder with delivered=false and returns the stored
// row with its assigned ID. Title and push time are written atomically with
// the row.
func (s *Store) Create(ctx context.Context, title string, pushTime time.Time) (Reminder, error) {
	if strings.TrimSpace(title) == "" {
		return Reminder{}, fmt.Errorf("create reminder: title must not be empty")
	}

	now := time.Now().UTC()
	r := Reminder{
		Title:     title,
		PushTime:  pushTime.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := retryOnBusy(ctx, 5, func() error {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO reminders (title, push_time, delivered, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?);
		`, r.Title, r.PushTime.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert reminder: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reminder insert id: %w", err)
		}
		r.ID = id
		return nil
	})
	if err != nil {
		return Reminder{}, errors.Join(ErrPersistence, err)
	}
	return r, nil
}

// ListAll returns a snapshot of every reminder, ordered by push time.
// Ordering is for display convenience only; the engine does not rely on it.
func (s *Store) ListAll(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, push_time, delivered, created_at, updated_at
		FROM reminders
		ORDER BY push_time ASC, id ASC;
	`)
	if err != nil {
		return nil, errors.Join(ErrPersistence, fmt.Errorf("query reminders: %w", err))
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, errors.Join(ErrPersistence, fmt.Errorf("scan reminder: %w", err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrPersistence, fmt.Errorf("reminder rows: %w", err))
	}
	return out, nil
}

// MarkDelivered flips the delivered flag for the given id. It is idempotent:
// a second call on the same id is a no-op, and a missing id is logged and
// ignored since the row may have been deleted between the notification
// firing and this call.
func (s *Store) MarkDelivered(ctx context.Context, id int64) error {
	err := retryOnBusy(ctx, 5, func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE reminders
			SET delivered = 1, updated_at = ?
			WHERE id = ? AND delivered = 0;
		`, time.Now().UTC().Format(time.RFC3339), id)
		if err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark delivered rows affected: %w", err)
		}
		if affected == 0 {
			s.logger.Debug("mark delivered was a no-op", "reminder_id", id)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

// Delete removes the row. Deleting a nonexistent id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := retryOnBusy(ctx, 5, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?;`, id); err != nil {
			return fmt.Errorf("delete reminder: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

// PendingCount returns the number of rows with delivered=false.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reminders WHERE delivered = 0;`).Scan(&count); err != nil {
		return 0, errors.Join(ErrPersistence, fmt.Errorf("pending count: %w", err))
	}
	return count, nil
}

func scanReminder(rows *sql.Rows) (Reminder, error) {
	var r Reminder
	var pushTime, createdAt, updatedAt string
	var delivered int
	if err := rows.Scan(&r.ID, &r.Title, &pushTime, &delivered, &createdAt, &updatedAt); err != nil {
		return Reminder{}, err
	}
	r.Delivered = delivered != 0

	var err error
	if r.PushTime, err = time.Parse(time.RFC3339, pushTime); err != nil {
		return Reminder{}, fmt.Errorf("parse push_time %q: %w", pushTime, err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Reminder{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Reminder{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return r, nil
}
