// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/lexstream/internal/config"
	"github.com/jeranaias/lexstream/internal/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations as whole documents.
type Store interface {
	// Save creates or replaces the conversation with conv.ID.
	Save(conv *model.Conversation) error

	// Load returns the stored conversation or ErrConversationNotFound.
	Load(id string) (*model.Conversation, error)

	// List returns metadata for every conversation, most recent first.
	List() ([]ConversationMeta, error)

	// Delete removes a conversation or returns ErrConversationNotFound.
	Delete(id string) error

	// Clear removes every conversation.
	Clear() error

	// Close releases the backend.
	Close() error
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// encodeDocument renders conv in its JSON map form.
func encodeDocument(conv *model.Conversation, indent bool) ([]byte, error) {
	doc, err := conv.ToMap()
	if err != nil {
		return nil, fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// decodeDocument rebuilds a conversation from a stored document.
func decodeDocument(id string, data []byte) (*model.Conversation, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	conv, err := model.ConversationFromMap(doc)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MessageCount  int       `json:"message_count"`
	ArtifactCount int       `json:"artifact_count"`
	Preview       string    `json:"preview"` // First user message truncated
}

// metaOf summarizes a conversation for listing.
func metaOf(conv *model.Conversation) ConversationMeta {
	return ConversationMeta{
		ID:            conv.ID,
		Title:         conv.GetTitle(),
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
		MessageCount:  conv.MessageCount(),
		ArtifactCount: conv.ArtifactCount(),
		Preview:       conv.Preview(),
	}
}

// =============================================================================
// OPEN
// =============================================================================

// Open returns the backend selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendJSON:
		store, err := NewJSONStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		store.MaxConversations = cfg.MaxConversations
		return store, nil
	case config.BackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Dir, "conversations.db"), cfg.MaxConversations)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// =============================================================================
// SEARCH
// =============================================================================

// Search returns the conversations whose title or preview contains query,
// case-insensitively.
func Search(s Store, query string) ([]ConversationMeta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	query = strings.ToLower(query)
	var results []ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
		}
	}
	return results, nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	// Use errors.Is(err, ErrConversationNotFound) to check for this error.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrInvalidID is returned for ids that cannot name a stored conversation.
	ErrInvalidID = &ConversationError{Message: "invalid conversation id"}
)

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

func (e *ConversationError) Error() string {
	return e.Message
}

// Is reports whether target is a ConversationError with the same message.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// validateID rejects empty ids and ids that could escape the store directory.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
