// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/util"
)

// DefaultMaxConversations is the pruning limit of a new JSONStore.
const DefaultMaxConversations = 100

// =============================================================================
// JSON STORE
// =============================================================================

// JSONStore keeps one pretty-printed JSON file per conversation.
type JSONStore struct {
	// BaseDir is the directory for storing conversations.
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited).
	// The least recently updated are removed first.
	MaxConversations int

	mu sync.Mutex
}

// NewJSONStore creates a store in baseDir, or in ~/.lexstream/conversations
// when baseDir is empty.
func NewJSONStore(baseDir string) (*JSONStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(home, ".lexstream", "conversations")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create conversation directory: %w", err)
	}

	return &JSONStore{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// Save writes conv atomically and prunes beyond MaxConversations.
func (s *JSONStore) Save(conv *model.Conversation) error {
	if err := validateID(conv.ID); err != nil {
		return err
	}

	data, err := encodeDocument(conv, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0600); err != nil {
		return err
	}
	if s.MaxConversations > 0 {
		s.enforceLimit(conv.ID)
	}
	return nil
}

// enforceLimit removes the least recently updated conversations over the
// limit, never the one just saved.
func (s *JSONStore) enforceLimit(keep string) {
	metas, err := s.list()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}

	// Oldest first.
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})

	excess := len(metas) - s.MaxConversations
	for _, meta := range metas {
		if excess == 0 {
			break
		}
		if meta.ID == keep {
			continue
		}
		if os.Remove(s.filePath(meta.ID)) == nil {
			excess--
		}
	}
}

// Load reads a conversation by id.
func (s *JSONStore) Load(id string) (*model.Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.load(id)
}

func (s *JSONStore) load(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return decodeDocument(id, data)
}

// List returns all saved conversations, most recent first. Unreadable files
// are skipped.
func (s *JSONStore) List() ([]ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *JSONStore) list() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationMeta{}, nil
		}
		return nil, err
	}

	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		conv, err := s.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, metaOf(conv))
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes a conversation by id.
func (s *JSONStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Clear removes all saved conversations. Files that are not conversations
// are left alone.
func (s *JSONStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(s.BaseDir, entry.Name()))
		}
	}
	return nil
}

// Close implements Store.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
