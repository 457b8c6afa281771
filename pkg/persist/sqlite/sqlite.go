// Package sqlite implements message snapshots in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/persist"
)

// Store keeps the latest snapshot in a single messages table. Save
// replaces the table contents in one transaction.
type Store struct {
	db *sql.DB
}

var _ persist.Snapshotter = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_position ON messages(position);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Save(ctx context.Context, messages []*domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (position, id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		metadata := ""
		if msg.Metadata != nil {
			b, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("encoding metadata for %s: %w", msg.ID, err)
			}
			metadata = string(b)
		}
		if _, err := stmt.ExecContext(ctx, i, msg.ID, string(msg.Role), msg.Content, metadata, msg.CreatedAt); err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, metadata, created_at
		FROM messages ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var (
			msg       domain.Message
			role      string
			metadata  string
			createdAt time.Time
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = createdAt
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
