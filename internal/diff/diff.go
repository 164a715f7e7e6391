// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
)

// =============================================================================
// LINE TYPES
// =============================================================================

// Op is the kind of a diff line.
type Op int

const (
	// Equal lines appear in both revisions.
	Equal Op = iota
	// Delete lines appear only in the old revision.
	Delete
	// Insert lines appear only in the new revision.
	Insert
)

// String returns the op name used in JSON output.
func (o Op) String() string {
	switch o {
	case Equal:
		return "equal"
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "unknown"
	}
}

// Prefix returns the unified diff marker for the op.
func (o Op) Prefix() string {
	switch o {
	case Delete:
		return "-"
	case Insert:
		return "+"
	default:
		return " "
	}
}

// Line is one line of a diff.
type Line struct {
	Op   Op
	Text string
}

// Hunk is a run of changes with surrounding context. Starts are 1-based;
// a side with a zero count starts at the line before the hunk.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Stats counts changed lines.
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Diff is the line diff between two revisions of a document.
type Diff struct {
	Lines []Line
	Hunks []Hunk
	Stats Stats
}

// =============================================================================
// COMPUTATION
// =============================================================================

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// maxCells bounds the LCS table. Larger inputs are diffed as a full rewrite.
const maxCells = 4 << 20

// Compute diffs before against after line by line.
func Compute(before, after string) *Diff {
	return ComputeContext(before, after, DefaultContext)
}

// ComputeContext is Compute with a custom amount of context per hunk.
func ComputeContext(before, after string, context int) *Diff {
	a, b := splitLines(before), splitLines(after)

	d := &Diff{Lines: lineDiff(a, b)}
	for _, l := range d.Lines {
		switch l.Op {
		case Insert:
			d.Stats.Added++
		case Delete:
			d.Stats.Removed++
		}
	}
	d.Hunks = group(d.Lines, max(context, 0))
	return d
}

// Empty reports whether the revisions are identical.
func (d *Diff) Empty() bool {
	return d.Stats.Added == 0 && d.Stats.Removed == 0
}

// splitLines splits content into lines. A final newline does not start an
// extra empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// lineDiff aligns a and b on their longest common subsequence. Within a
// change, deletions come before insertions.
func lineDiff(a, b []string) []Line {
	m, n := len(a), len(b)
	lines := make([]Line, 0, max(m, n))

	if m*n > maxCells {
		for _, s := range a {
			lines = append(lines, Line{Op: Delete, Text: s})
		}
		for _, s := range b {
			lines = append(lines, Line{Op: Insert, Text: s})
		}
		return lines
	}

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			lines = append(lines, Line{Op: Equal, Text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			lines = append(lines, Line{Op: Delete, Text: a[i]})
			i++
		default:
			lines = append(lines, Line{Op: Insert, Text: b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		lines = append(lines, Line{Op: Delete, Text: a[i]})
	}
	for ; j < n; j++ {
		lines = append(lines, Line{Op: Insert, Text: b[j]})
	}
	return lines
}

// group cuts lines into hunks. Changes separated by at most 2*context
// unchanged lines share a hunk.
func group(lines []Line, context int) []Hunk {
	var hunks []Hunk
	oldPos, newPos := 0, 0 // lines consumed before index i

	for i := 0; i < len(lines); {
		if lines[i].Op == Equal {
			oldPos++
			newPos++
			i++
			continue
		}

		start := max(0, i-context)
		last := i
		for j := i + 1; j < len(lines); j++ {
			if lines[j].Op != Equal {
				last = j
			} else if j-last > 2*context {
				break
			}
		}
		stop := min(len(lines), last+context+1)

		// Rewind the counters over the leading context.
		h := Hunk{Lines: lines[start:stop]}
		oldBefore, newBefore := oldPos-(i-start), newPos-(i-start)
		for _, l := range h.Lines {
			if l.Op != Insert {
				h.OldCount++
			}
			if l.Op != Delete {
				h.NewCount++
			}
		}
		h.OldStart, h.NewStart = oldBefore, newBefore
		if h.OldCount > 0 {
			h.OldStart++
		}
		if h.NewCount > 0 {
			h.NewStart++
		}
		hunks = append(hunks, h)

		for _, l := range lines[i:stop] {
			if l.Op != Insert {
				oldPos++
			}
			if l.Op != Delete {
				newPos++
			}
		}
		i = stop
	}
	return hunks
}

// =============================================================================
// FORMATTING
// =============================================================================

// Unified renders the diff in unified format with the given file labels.
// Identical revisions render as "".
func (d *Diff) Unified(from, to string) string {
	if d.Empty() {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", from, to)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Op.Prefix())
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Summary returns the change counts, e.g. "+2 -1".
func (d *Diff) Summary() string {
	return fmt.Sprintf("+%d -%d", d.Stats.Added, d.Stats.Removed)
}
