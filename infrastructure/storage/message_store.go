// Package storage holds the concrete stores: the relational message store
// fed by the persistence consumer, and the per-instance history projection.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const messagesSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	text        TEXT    NOT NULL,
	produced_at INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE (produced_at, text)
);`

// MessageStore is the persistent store behind the durable delivery path.
// Create is an idempotent upsert on (produced_at, text): the log consumer
// guarantees at-least-once delivery, so the same message may arrive twice
// after a crash between write and cursor commit.
type MessageStore struct {
	db  *sql.DB
	log *slog.Logger
}

func OpenMessageStore(path string, log *slog.Logger) (*MessageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(messagesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate messages schema: %w", err)
	}
	return &MessageStore{db: db, log: log}, nil
}

func (s *MessageStore) Create(ctx context.Context, text string, producedAt time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (text, produced_at, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (produced_at, text) DO UPDATE SET created_at = created_at
		RETURNING id`,
		text, producedAt.UnixNano(), time.Now().UnixNano(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create message: %w", err)
	}
	return id, nil
}

// Count is used by operational checks and tests.
func (s *MessageStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}
