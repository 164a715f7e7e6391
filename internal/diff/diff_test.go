// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_ReplacedLine(t *testing.T) {
	d := Compute("a\nb\nc", "a\nB\nc")

	assert.Equal(t, Stats{Added: 1, Removed: 1}, d.Stats)
	assert.Equal(t, []Line{
		{Op: Equal, Text: "a"},
		{Op: Delete, Text: "b"},
		{Op: Insert, Text: "B"},
		{Op: Equal, Text: "c"},
	}, d.Lines)

	want := "--- old\n+++ new\n" +
		"@@ -1,3 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		"+B\n" +
		" c\n"
	assert.Equal(t, want, d.Unified("old", "new"))
	assert.Equal(t, "+1 -1", d.Summary())
}

func TestCompute_Identical(t *testing.T) {
	d := Compute("same\ntext\n", "same\ntext")
	assert.True(t, d.Empty())
	assert.Empty(t, d.Hunks)
	assert.Equal(t, "", d.Unified("old", "new"))
}

func TestCompute_FromEmpty(t *testing.T) {
	d := Compute("", "x\ny\n")
	assert.Equal(t, Stats{Added: 2}, d.Stats)
	require.Len(t, d.Hunks, 1)
	assert.Contains(t, d.Unified("old", "new"), "@@ -0,0 +1,2 @@\n+x\n+y\n")
}

func TestCompute_ToEmpty(t *testing.T) {
	d := Compute("x\ny", "")
	assert.Equal(t, Stats{Removed: 2}, d.Stats)
	assert.Contains(t, d.Unified("old", "new"), "@@ -1,2 +0,0 @@\n-x\n-y\n")
}

func TestCompute_Insertion(t *testing.T) {
	d := Compute("a\nc", "a\nb\nc")
	assert.Equal(t, Stats{Added: 1}, d.Stats)
	assert.Contains(t, d.Unified("old", "new"), "@@ -1,2 +1,3 @@\n a\n+b\n c\n")
}

func numbered(n int, change map[int]string) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line " + string(rune('A'+i%26))
		if s, ok := change[i]; ok {
			lines[i] = s
		}
	}
	return strings.Join(lines, "\n")
}

func TestCompute_SeparateHunks(t *testing.T) {
	before := numbered(20, nil)
	after := numbered(20, map[int]string{1: "first", 18: "second"})

	d := Compute(before, after)
	require.Len(t, d.Hunks, 2)

	first, second := d.Hunks[0], d.Hunks[1]
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 5, first.OldCount) // lines 1-5: one before, change, three after
	assert.Equal(t, 16, second.OldStart)
	assert.Equal(t, 5, second.OldCount) // lines 16-20
	assert.Equal(t, second.OldStart, second.NewStart)
}

func TestCompute_CloseChangesShareHunk(t *testing.T) {
	before := numbered(20, nil)
	after := numbered(20, map[int]string{5: "first", 11: "second"})

	d := Compute(before, after)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, 3, d.Hunks[0].OldStart)
	assert.Equal(t, 13, d.Hunks[0].OldCount) // lines 3-15
}

func TestComputeContext_Zero(t *testing.T) {
	d := ComputeContext("a\nb\nc", "a\nB\nc", 0)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, "--- o\n+++ n\n@@ -2,1 +2,1 @@\n-b\n+B\n", d.Unified("o", "n"))
}

func TestCompute_LargeInputFallsBackToRewrite(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < 2100; i++ {
		a.WriteString("old\n")
		b.WriteString("new\n")
	}
	// Share one line so an LCS diff would differ from a full rewrite.
	d := Compute("keep\n"+a.String(), b.String()+"keep\n")
	assert.Equal(t, 2101, d.Stats.Removed)
	assert.Equal(t, 2101, d.Stats.Added)
}

func TestOp_Strings(t *testing.T) {
	assert.Equal(t, "equal", Equal.String())
	assert.Equal(t, "-", Delete.Prefix())
	assert.Equal(t, "+", Insert.Prefix())
	assert.Equal(t, " ", Equal.Prefix())
}
