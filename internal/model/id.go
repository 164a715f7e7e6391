// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out identifiers for messages, conversations and artifacts.
// One generator is scoped to a session or conversation.
type IDGenerator interface {
	Next() string
}

// UUIDGenerator produces random UUIDv4 identifiers with an optional prefix.
type UUIDGenerator struct {
	prefix string
}

// NewUUIDGenerator creates a generator whose ids look like "<prefix>_<uuid>".
func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{prefix: prefix}
}

// Next returns a fresh identifier.
func (g *UUIDGenerator) Next() string {
	id := uuid.NewString()
	if g.prefix == "" {
		return id
	}
	return g.prefix + "_" + id
}

// SequenceGenerator produces "<prefix>-1", "<prefix>-2", ... and is safe for
// concurrent use. Replays and tests use it for stable output.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a monotonic generator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *SequenceGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.prefix == "" {
		return strconv.Itoa(g.n)
	}
	return g.prefix + "-" + strconv.Itoa(g.n)
}
