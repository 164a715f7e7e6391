// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 4096

// =============================================================================
// STREAM READER
// =============================================================================

// Callback receives each decoded event in arrival order.
type Callback func(Event)

// Reader frames and decodes an NDJSON body read from an io.Reader.
type Reader struct {
	r         io.Reader
	framer    *Framer
	chunkSize int

	lines   int
	dropped int
	events  int
}

// NewReader creates a reader with the default chunk size.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, DefaultChunkSize)
}

// NewReaderSize creates a reader that reads at most size bytes per chunk.
func NewReaderSize(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Reader{
		r:         r,
		framer:    NewFramer(),
		chunkSize: size,
	}
}

// Process reads the stream and calls fn for each event.
// Blocks until the stream is complete or the context is cancelled.
//
// Returns nil at EOF after the buffered tail has been decoded, ctx.Err() on
// cancellation, and the upstream error otherwise. No partial tail is decoded
// after an upstream error.
func (s *Reader) Process(ctx context.Context, fn Callback) error {
	buf := make([]byte, s.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.r.Read(buf)
		if n > 0 {
			for _, line := range s.framer.Push(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.emit(line, fn)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if line, ok := s.framer.Flush(); ok {
					s.emit(line, fn)
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

func (s *Reader) emit(line string, fn Callback) {
	s.lines++
	ev, ok := DecodeLine(line)
	if !ok {
		s.dropped++
		return
	}
	s.events++
	fn(ev)
}

// Lines returns the number of non-blank lines framed so far.
func (s *Reader) Lines() int {
	return s.lines
}

// Dropped returns the number of lines that produced no event.
func (s *Reader) Dropped() int {
	return s.dropped
}

// EventCount returns the number of events delivered.
func (s *Reader) EventCount() int {
	return s.events
}

// =============================================================================
// CHANNEL ADAPTER
// =============================================================================

// Item is one element of the channel returned by Events. Err is set only on
// the final item when the stream failed.
type Item struct {
	Event Event
	Err   error
}

// Events decodes r on a goroutine and returns a channel of items.
// The channel is closed when streaming is complete or an error occurs.
func Events(ctx context.Context, r io.Reader) <-chan Item {
	ch := make(chan Item)

	go func() {
		defer close(ch)

		err := NewReader(r).Process(ctx, func(ev Event) {
			select {
			case ch <- Item{Event: ev}:
			case <-ctx.Done():
			}
		})

		if err != nil {
			select {
			case ch <- Item{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}
