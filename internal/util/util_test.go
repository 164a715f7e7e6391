// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.json")

	require.NoError(t, AtomicWriteFile(path, []byte(`{"id":"a"}`), 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(content))
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "conv.json")

	require.NoError(t, AtomicWriteFile(path, []byte("data"), 0644))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.json")

	require.NoError(t, AtomicWriteFile(path, []byte("initial"), 0644))
	require.NoError(t, AtomicWriteFile(path, []byte("updated"), 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(content))
}

func TestAtomicWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		require.NoError(t, AtomicWriteFile(filepath.Join(dir, "conv.json"), []byte("x"), 0644))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "conv.json", entries[0].Name())
}

func TestAtomicWriteFile_EmptyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	require.NoError(t, AtomicWriteFile(path, []byte{}, 0644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newdir", "conv.json")

	require.NoError(t, AtomicWriteFileWithDir(path, []byte("test"), 0600, 0700))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

// =============================================================================
// DISPLAY WIDTH TESTS
// =============================================================================

func TestStringWidth(t *testing.T) {
	assert.Equal(t, 5, StringWidth("hello"))
	assert.Equal(t, 4, StringWidth("日本"))
	assert.Equal(t, 0, StringWidth(""))
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ascii", "hello world", 8, "hello..."},
		{"wide runes", "日本語テキスト", 7, "日本..."},
		{"no room for ellipsis", "abcdef", 3, "abc"},
		{"zero", "abc", 0, ""},
		{"negative", "abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateWidth(tt.input, tt.maxWidth))
		})
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "日本  ", PadRight("日本", 6))
	assert.Equal(t, "abcdefg...", PadRight("abcdefghijklmnop", 10))
	assert.Equal(t, 10, StringWidth(PadRight("Café lease", 10)))
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "Draft a lease for me", SingleLine("  Draft a\nlease \t for me\n"))
	assert.Equal(t, "", SingleLine(" \n "))
}
