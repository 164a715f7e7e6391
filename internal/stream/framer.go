// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"strings"
)

// =============================================================================
// LINE FRAMER
// =============================================================================

// Framer splits an arbitrarily chunked byte stream into complete lines.
// The unterminated tail is held until more bytes arrive or Flush is called.
// Splitting is bytewise, so chunks may end inside a UTF-8 sequence.
type Framer struct {
	buf []byte
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Push appends a chunk and returns every line it completed, in order.
// Blank lines are skipped and a trailing carriage return is removed.
func (f *Framer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		if line, ok := normalizeLine(f.buf[:i]); ok {
			lines = append(lines, line)
		}
		f.buf = f.buf[i+1:]
	}

	// Drop the consumed prefix so the backing array does not grow forever.
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
	return lines
}

// Flush returns the buffered tail as a final line when the stream ends.
func (f *Framer) Flush() (string, bool) {
	tail := f.buf
	f.buf = nil
	return normalizeLine(tail)
}

// Pending returns the number of buffered bytes not yet framed.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func normalizeLine(b []byte) (string, bool) {
	line := strings.TrimSuffix(string(b), "\r")
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	return line, true
}
