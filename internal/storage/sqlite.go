// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/lexstream/internal/model"
)

// sqliteSchema stores each conversation as its JSON document plus the
// columns needed for listing.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	message_count  INTEGER NOT NULL DEFAULT 0,
	artifact_count INTEGER NOT NULL DEFAULT 0,
	preview        TEXT NOT NULL DEFAULT '',
	body           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps conversations in a single SQLite database.
type SQLiteStore struct {
	db               *sql.DB
	path             string
	maxConversations int
}

// NewSQLiteStore opens or creates the database at path. maxConversations
// bounds the stored conversations (0 = unlimited).
func NewSQLiteStore(path string, maxConversations int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, maxConversations: maxConversations}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save upserts conv and prunes beyond the configured limit.
func (s *SQLiteStore) Save(conv *model.Conversation) error {
	if err := validateID(conv.ID); err != nil {
		return err
	}

	body, err := encodeDocument(conv, false)
	if err != nil {
		return err
	}
	meta := metaOf(conv)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at, message_count, artifact_count, preview, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			artifact_count = excluded.artifact_count,
			preview = excluded.preview,
			body = excluded.body`,
		meta.ID, meta.Title, meta.CreatedAt.UnixNano(), meta.UpdatedAt.UnixNano(),
		meta.MessageCount, meta.ArtifactCount, meta.Preview, string(body),
	)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}

	if s.maxConversations > 0 {
		_, err = tx.Exec(`
			DELETE FROM conversations
			WHERE id != ? AND id NOT IN (
				SELECT id FROM conversations WHERE id != ?
				ORDER BY updated_at DESC, id LIMIT ?
			)`, conv.ID, conv.ID, s.maxConversations-1)
		if err != nil {
			return fmt.Errorf("prune conversations: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns the stored conversation.
func (s *SQLiteStore) Load(id string) (*model.Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var body string
	err := s.db.QueryRow(`SELECT body FROM conversations WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}

	return decodeDocument(id, []byte(body))
}

// List returns metadata for all conversations, most recent first.
func (s *SQLiteStore) List() ([]ConversationMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at, message_count, artifact_count, preview
		FROM conversations
		ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	metas := make([]ConversationMeta, 0)
	for rows.Next() {
		var (
			meta             ConversationMeta
			created, updated int64
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &created, &updated,
			&meta.MessageCount, &meta.ArtifactCount, &meta.Preview); err != nil {
			return nil, err
		}
		meta.CreatedAt = time.Unix(0, created)
		meta.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Delete removes a conversation.
func (s *SQLiteStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes every conversation.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
