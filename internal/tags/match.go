// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single regex run. Patterns here are linear, so it only
// trips on pathological input; matches found before it trips are kept.
const matchTimeout = 5 * time.Second

// span is one match with byte offsets into the scanned text.
type span struct {
	start  int
	end    int
	groups []string
}

func mustCompile(pattern string, opts regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, opts)
	re.MatchTimeout = matchTimeout
	return re
}

// =============================================================================
// BLOCKS
// =============================================================================

// blockPattern matches <name ...>body</name> as two anchors. The body ends at
// the first closing tag after the opener.
type blockPattern struct {
	open  *regexp2.Regexp
	close *regexp2.Regexp
}

func newBlockPattern(open, close string) blockPattern {
	var opts regexp2.RegexOptions = regexp2.Singleline | regexp2.IgnoreCase
	return blockPattern{
		open:  mustCompile(open, opts),
		close: mustCompile(close, opts),
	}
}

// find returns up to limit blocks (limit <= 0 means all). A span's groups are
// the whole block, then the opener's capture groups, then the body.
//
// Each rune is scanned at most once by each anchor: once an opener has no
// closing tag, no later opener can have one either.
func (p blockPattern) find(text string, limit int) []span {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var (
		spans   []span
		offsets []int
	)
	for pos := 0; pos < len(runes); {
		open, err := p.open.FindRunesMatchStartingAt(runes, pos)
		if err != nil || open == nil {
			break
		}
		bodyStart := open.Index + open.Length
		end, err := p.close.FindRunesMatchStartingAt(runes, bodyStart)
		if err != nil || end == nil {
			break
		}
		if offsets == nil {
			offsets = runeOffsets(text)
		}

		groups := open.Groups()
		values := make([]string, 0, len(groups)+1)
		values = append(values, text[offsets[open.Index]:offsets[end.Index+end.Length]])
		for _, g := range groups[1:] {
			values = append(values, g.String())
		}
		values = append(values, text[offsets[bodyStart]:offsets[end.Index]])

		spans = append(spans, span{
			start:  offsets[open.Index],
			end:    offsets[end.Index+end.Length],
			groups: values,
		})
		if limit > 0 && len(spans) >= limit {
			break
		}
		pos = end.Index + end.Length
	}
	return spans
}

// =============================================================================
// SPANS
// =============================================================================

// findSpans returns every non-overlapping match of re. A timed-out scan keeps
// the matches found before it.
func findSpans(re *regexp2.Regexp, text string) []span {
	if text == "" {
		return nil
	}

	var (
		spans   []span
		offsets []int
	)
	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		if offsets == nil {
			offsets = runeOffsets(text)
		}

		groups := m.Groups()
		values := make([]string, len(groups))
		for i := range groups {
			values[i] = groups[i].String()
		}
		spans = append(spans, span{
			start:  offsets[m.Index],
			end:    offsets[m.Index+m.Length],
			groups: values,
		})
		m, err = re.FindNextMatch(m)
	}
	return spans
}

// runeOffsets maps rune indexes (as reported by regexp2) to byte offsets.
// The extra final entry is len(text).
func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// removeSpans deletes every span from text. Spans must be ordered and
// non-overlapping.
func removeSpans(text string, spans []span) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// inside reports whether pos falls within any of the spans.
func inside(pos int, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}
