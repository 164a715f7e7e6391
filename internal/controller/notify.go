// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"sync"

	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/stream"
)

// =============================================================================
// UPDATES
// =============================================================================

// UpdateKind identifies what an Update carries.
type UpdateKind int

const (
	// UpdateEvent carries a decoded stream event.
	UpdateEvent UpdateKind = iota
	// UpdatePhase carries a new activity phase.
	UpdatePhase
	// UpdateMessage carries a snapshot of a changed message.
	UpdateMessage
	// UpdateClarify carries clarification questions for the finished message.
	UpdateClarify
	// UpdateDone carries the outcome of an ended turn.
	UpdateDone
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateEvent:
		return "event"
	case UpdatePhase:
		return "phase"
	case UpdateMessage:
		return "message"
	case UpdateClarify:
		return "clarify"
	case UpdateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Update is one notification to listeners. Message snapshots are copies and
// may be kept.
type Update struct {
	Kind      UpdateKind
	TurnID    string
	Event     stream.Event
	Phase     Phase
	Message   *model.Message
	Questions []model.ClarifyQuestion
	Outcome   *Outcome
}

// batch collects updates produced under the controller lock, plus the turns
// whose Done channel closes after those updates are delivered.
type batch struct {
	updates []Update
	ended   []*Turn
}

func (b *batch) add(u Update) {
	b.updates = append(b.updates, u)
}

func (b *batch) finish(t *Turn) {
	b.ended = append(b.ended, t)
}

// =============================================================================
// HUB
// =============================================================================

// hub delivers batches to listeners in publish order. Whichever goroutine
// finds the queue idle drains it; a listener that triggers more updates has
// them queued behind the current batch instead of recursing.
type hub struct {
	mu        sync.Mutex
	listeners []listener
	nextID    int
	queue     []batch
	draining  bool
}

type listener struct {
	id int
	fn func(Update)
}

func newHub() *hub {
	return &hub{}
}

func (h *hub) subscribe(fn func(Update)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, l := range h.listeners {
				if l.id == id {
					h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *hub) publish(b batch) {
	if len(b.updates) == 0 && len(b.ended) == 0 {
		return
	}

	h.mu.Lock()
	h.queue = append(h.queue, b)
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true

	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		listeners := append([]listener(nil), h.listeners...)
		h.mu.Unlock()

		for _, u := range next.updates {
			for _, l := range listeners {
				l.fn(u)
			}
		}
		for _, t := range next.ended {
			close(t.done)
		}

		h.mu.Lock()
	}
	h.draining = false
	h.mu.Unlock()
}
