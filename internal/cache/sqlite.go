package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/normanking/visemekit/internal/timeline"
)

// SQLiteStore keeps entries in a single SQLite table. Each Put is one
// upsert inside a transaction, so a failed write leaves the old row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath. The parent
// directory is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS timelines (
		key TEXT PRIMARY KEY,
		document BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get loads an entry.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (*timeline.Timeline, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM timelines WHERE key = ?`, string(key)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CacheError{Key: key, Op: "read", Err: err}
	}
	return decodeEntry(key, data)
}

// Put upserts an entry.
func (s *SQLiteStore) Put(ctx context.Context, key Key, tl *timeline.Timeline) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := encodeEntry(key, tl)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO timelines (key, document, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		document = excluded.document,
		updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, string(key), data, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timelines WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM timelines`)
	if err != nil {
		return 0, fmt.Errorf("clear entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Keys lists stored keys in sorted order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM timelines ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		keys = append(keys, Key(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return keys, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
