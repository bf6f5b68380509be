// Package store appends chat records to sqlite and answers room access checks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// the persister and ACL reads share one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []struct{ name, sql string }{
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id              TEXT PRIMARY KEY,
				temp_id         TEXT DEFAULT '',
				room_id         TEXT DEFAULT '',
				conversation_id TEXT DEFAULT '',
				sender_id       TEXT NOT NULL,
				sender_name     TEXT DEFAULT '',
				content         TEXT NOT NULL,
				sent_at         DATETIME NOT NULL
			);`},
		{"messages index", `CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, sent_at);`},
		{"edits", `
			CREATE TABLE IF NOT EXISTS message_edits (
				message_id TEXT NOT NULL,
				room_id    TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				content    TEXT NOT NULL,
				edited_at  DATETIME NOT NULL
			);`},
		{"reactions", `
			CREATE TABLE IF NOT EXISTS message_reactions (
				message_id TEXT NOT NULL,
				room_id    TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				emoji      TEXT NOT NULL,
				reacted_at DATETIME NOT NULL,
				PRIMARY KEY (message_id, user_id, emoji)
			);`},
		{"room acl", `
			CREATE TABLE IF NOT EXISTS room_members (
				room_id    TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				granted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (room_id, user_id)
			);`},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.sql); err != nil {
			return fmt.Errorf("create %s table: %w", s.name, err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AppendMessage(ctx context.Context, m domain.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (id, temp_id, room_id, conversation_id, sender_id, sender_name, content, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.TempID, string(m.RoomID), string(m.ConversationID),
		string(m.SenderID), m.SenderName, m.Content, m.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) AppendEdit(ctx context.Context, e domain.MessageEdit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_edits (message_id, room_id, user_id, content, edited_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(e.MessageID), string(e.RoomID), string(e.UserID), e.Content, e.EditedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	return nil
}

// AppendReaction records one reaction; repeating the same emoji is a no-op.
func (s *Store) AppendReaction(ctx context.Context, r domain.Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reactions (message_id, room_id, user_id, emoji, reacted_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(r.MessageID), string(r.RoomID), string(r.UserID), r.Emoji, r.ReactedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append reaction: %w", err)
	}
	return nil
}

// GrantRoom restricts rid to its granted users.
func (s *Store) GrantRoom(ctx context.Context, rid domain.RoomID, uid domain.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO room_members (room_id, user_id, granted_at) VALUES (?, ?, ?)`,
		string(rid), string(uid), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("grant room: %w", err)
	}
	return nil
}

// CanJoin reports whether uid may join rid. A room without ACL rows is open.
func (s *Store) CanJoin(ctx context.Context, rid domain.RoomID, uid domain.UserID) (bool, error) {
	var granted, total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN user_id = ? THEN 1 ELSE 0 END), 0), COUNT(*)
		FROM room_members WHERE room_id = ?`,
		string(uid), string(rid),
	).Scan(&granted, &total)
	if err != nil {
		return false, fmt.Errorf("check room access: %w", err)
	}
	return total == 0 || granted > 0, nil
}
