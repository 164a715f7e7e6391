// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lexstream/internal/config"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/util"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// makeConversation builds a finished two-message conversation updated at
// baseTime plus offset.
func makeConversation(id, question string, offset time.Duration) *model.Conversation {
	conv := model.NewConversation(id)
	user := model.NewMessage(id+"-u", id, model.RoleUser, question)
	user.Timestamp = baseTime
	assistant := model.NewMessage(id+"-a", id, model.RoleAssistant, "Here is a draft.")
	assistant.Timestamp = baseTime
	assistant.Artifacts = []model.Artifact{{
		ID:      id + "-art",
		Type:    model.ArtifactContract,
		Title:   "Lease",
		Content: "Rent is 1000.",
	}}
	assistant.ToolsUsed = []string{"web_search"}
	conv.AddMessage(user)
	conv.AddMessage(assistant)
	conv.CreatedAt = baseTime
	conv.UpdatedAt = baseTime.Add(offset)
	return conv
}

type backend struct {
	name string
	open func(t *testing.T, max int) Store
}

var backends = []backend{
	{"json", func(t *testing.T, max int) Store {
		s, err := NewJSONStore(t.TempDir())
		require.NoError(t, err)
		s.MaxConversations = max
		return s
	}},
	{"sqlite", func(t *testing.T, max int) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"), max)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, open func(t *testing.T, max int) Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open)
		})
	}
}

// =============================================================================
// STORE TESTS (ALL BACKENDS)
// =============================================================================

func TestStore_SaveAndLoad(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		conv := makeConversation("conv-1", "Draft a lease", 0)

		require.NoError(t, store.Save(conv))
		loaded, err := store.Load("conv-1")
		require.NoError(t, err)

		assert.Equal(t, "conv-1", loaded.ID)
		assert.Equal(t, "Draft a lease", loaded.Title)
		assert.True(t, conv.UpdatedAt.Equal(loaded.UpdatedAt))
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, model.RoleUser, loaded.Messages[0].Role)
		assert.Equal(t, "Here is a draft.", loaded.Messages[1].Content)
		assert.Equal(t, conv.Messages[1].Artifacts, loaded.Messages[1].Artifacts)
		assert.Equal(t, []string{"web_search"}, loaded.Messages[1].ToolsUsed)
		assert.Equal(t, "conv-1", loaded.Messages[1].ConversationID)
	})
}

func TestStore_LoadNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)

		_, err := store.Load("missing")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestStore_SaveReplaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		conv := makeConversation("conv-1", "Draft a lease", 0)
		require.NoError(t, store.Save(conv))

		conv.AddMessage(model.NewMessage("conv-1-u2", "conv-1", model.RoleUser, "Raise the rent"))
		require.NoError(t, store.Save(conv))

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 1)
		assert.Equal(t, 3, metas[0].MessageCount)
		assert.Equal(t, 1, metas[0].ArtifactCount)
	})
}

func TestStore_ListOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		require.NoError(t, store.Save(makeConversation("old", "First question", 0)))
		require.NoError(t, store.Save(makeConversation("new", "Second question", 2*time.Hour)))
		require.NoError(t, store.Save(makeConversation("mid", "Third question", time.Hour)))

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 3)
		assert.Equal(t, []string{"new", "mid", "old"}, []string{metas[0].ID, metas[1].ID, metas[2].ID})
		assert.Equal(t, "Second question", metas[0].Title)
		assert.Equal(t, "Second question", metas[0].Preview)
		assert.True(t, metas[0].UpdatedAt.Equal(baseTime.Add(2*time.Hour)))
	})
}

func TestStore_ListEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		metas, err := open(t, 0).List()
		require.NoError(t, err)
		assert.Empty(t, metas)
	})
}

func TestStore_Delete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		require.NoError(t, store.Save(makeConversation("conv-1", "q", 0)))

		require.NoError(t, store.Delete("conv-1"))
		_, err := store.Load("conv-1")
		assert.ErrorIs(t, err, ErrConversationNotFound)
		assert.ErrorIs(t, store.Delete("conv-1"), ErrConversationNotFound)
	})
}

func TestStore_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		require.NoError(t, store.Save(makeConversation("a", "q", 0)))
		require.NoError(t, store.Save(makeConversation("b", "q", time.Minute)))

		require.NoError(t, store.Clear())

		metas, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, metas)
		_, err = store.Load("a")
		assert.ErrorIs(t, err, ErrConversationNotFound)

		require.NoError(t, store.Clear())
	})
}

func TestStore_InvalidID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)

		for _, id := range []string{"", "..", "../escape", `a\b`} {
			assert.ErrorIs(t, store.Save(makeConversation(id, "q", 0)), ErrInvalidID, id)
			_, err := store.Load(id)
			assert.ErrorIs(t, err, ErrInvalidID, id)
			assert.ErrorIs(t, store.Delete(id), ErrInvalidID, id)
		}
	})
}

func TestStore_MaxConversations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 2)
		require.NoError(t, store.Save(makeConversation("a", "q", time.Hour)))
		require.NoError(t, store.Save(makeConversation("b", "q", 2*time.Hour)))
		require.NoError(t, store.Save(makeConversation("c", "q", 3*time.Hour)))

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, "c", metas[0].ID)
		assert.Equal(t, "b", metas[1].ID)

		// The conversation being saved survives even when it is the oldest.
		require.NoError(t, store.Save(makeConversation("stale", "q", 0)))
		_, err = store.Load("stale")
		assert.NoError(t, err)
		metas, err = store.List()
		require.NoError(t, err)
		assert.Len(t, metas, 2)
	})
}

func TestSearch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func(*testing.T, int) Store) {
		store := open(t, 0)
		require.NoError(t, store.Save(makeConversation("a", "Draft a LEASE agreement", 0)))
		require.NoError(t, store.Save(makeConversation("b", "Small claims filing", time.Hour)))

		results, err := Search(store, "lease")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].ID)

		results, err = Search(store, "")
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = Search(store, "patent")
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

// =============================================================================
// JSON STORE TESTS
// =============================================================================

func TestJSONStore_Defaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, store.BaseDir)
	assert.Equal(t, DefaultMaxConversations, store.MaxConversations)
	assert.NoError(t, store.Close())
}

func TestJSONStore_SkipsCorruptedFiles(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(makeConversation("good", "q", 0)))
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir, "bad.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir, "notes.txt"), []byte("x"), 0600))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "good", metas[0].ID)

	_, err = store.Load("bad")
	assert.ErrorContains(t, err, "decode conversation bad")
}

func TestJSONStore_FileFormat(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(makeConversation("conv-1", "q", 0)))

	data, err := os.ReadFile(filepath.Join(store.BaseDir, "conv-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"id\": \"conv-1\"")
	assert.Contains(t, string(data), `"isStreaming": false`)
}

func TestJSONStore_ClearKeepsOtherFiles(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(makeConversation("a", "q", 0)))
	notes := filepath.Join(store.BaseDir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0600))

	require.NoError(t, store.Clear())

	assert.FileExists(t, notes)
	assert.NoFileExists(t, filepath.Join(store.BaseDir, "a.json"))
}

func TestJSONStore_LoadNamesBadMessage(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	doc := `{"id":"conv-1","title":"t","messages":[{"id":"m1","role":"user","content":"hi"},{"id":"m2","content":42}]}`
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir, "conv-1.json"), []byte(doc), 0600))

	_, err = store.Load("conv-1")
	assert.ErrorContains(t, err, "conversation conv-1")
	assert.ErrorContains(t, err, "message 1")
}

func TestJSONStore_UnicodeContent(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	conv := makeConversation("uni", "Rédiger un bail pour 東京 🏠", 0)
	require.NoError(t, store.Save(conv))

	loaded, err := store.Load("uni")
	require.NoError(t, err)
	assert.Equal(t, "Rédiger un bail pour 東京 🏠", loaded.Messages[0].Content)
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(config.StorageConfig{Backend: config.BackendJSON, Dir: dir, MaxConversations: 7})
	require.NoError(t, err)
	js, ok := store.(*JSONStore)
	require.True(t, ok)
	assert.Equal(t, 7, js.MaxConversations)

	store, err = Open(config.StorageConfig{Backend: "SQLite", Dir: dir})
	require.NoError(t, err)
	defer store.Close()
	sq, ok := store.(*SQLiteStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "conversations.db"), sq.Path())

	_, err = Open(config.StorageConfig{Backend: "redis", Dir: dir})
	assert.ErrorContains(t, err, "unknown storage backend")
}

// =============================================================================
// EXPORT AND FORMAT TESTS
// =============================================================================

func TestExportMarkdown(t *testing.T) {
	conv := makeConversation("conv-1", "Draft a lease", 0)
	conv.Messages[1].Artifacts = append(conv.Messages[1].Artifacts, model.Artifact{
		Title: "Script", Type: model.ArtifactCode, Language: "python", Content: "print('```')",
	})
	failed := model.NewMessage("conv-1-e", "conv-1", model.RoleAssistant, "")
	failed.IsError = true
	failed.ErrorMessage = "boom"
	conv.Messages = append(conv.Messages, failed)

	md := ExportMarkdown(conv)

	assert.True(t, strings.HasPrefix(md, "# Draft a lease\n"))
	assert.Contains(t, md, "**You**")
	assert.Contains(t, md, "**Assistant**")
	assert.Contains(t, md, "### Lease (Contract)")
	assert.Contains(t, md, "```\nRent is 1000.\n```")
	assert.Contains(t, md, "````python\nprint('```')\n````")
	assert.Contains(t, md, "_Tools: web_search_")
	assert.Contains(t, md, "> Error: boom")
}

func TestExportJSON(t *testing.T) {
	data, err := ExportJSON(makeConversation("conv-1", "q", 0))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "conv-1"`)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "No conversations found.", FormatList(nil))

	out := FormatList([]ConversationMeta{
		{ID: "conv-1", Title: "Draft a lease", UpdatedAt: baseTime, MessageCount: 4, ArtifactCount: 1},
		{ID: "conv-2", Title: "東京の賃貸契約について詳しく教えてください、お願いします", UpdatedAt: baseTime, MessageCount: 2},
	})

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "ID")
	assert.Contains(t, lines[3], "Draft a lease")
	assert.True(t, strings.HasSuffix(lines[4], "..."))

	// Columns line up regardless of character width.
	prefix := idWidth + 1 + updatedWidth + 1 + countWidth + 1 + countWidth + 1
	assert.LessOrEqual(t, util.StringWidth(lines[4]), prefix+titleWidth)
	assert.Equal(t, strings.Index(lines[3], "Draft"), strings.Index(lines[4], "東"))
}

func TestConversationError_Is(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrConversationNotFound)
	assert.ErrorIs(t, wrapped, ErrConversationNotFound)
	assert.False(t, errors.Is(ErrInvalidID, ErrConversationNotFound))
	assert.ErrorIs(t, &ConversationError{Message: "conversation not found"}, ErrConversationNotFound)
}
