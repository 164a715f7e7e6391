// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/accumulator"
	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/stream"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// =============================================================================
// TURN
// =============================================================================

// Outcome describes how a turn ended.
type Outcome struct {
	// Status is one of the telemetry.Outcome* values.
	Status string

	// Result holds the reconciliation of a finished, stopped or superseded turn.
	Result accumulator.FinishResult

	// Questions are the clarification questions of the final message.
	Questions []model.ClarifyQuestion

	// ErrorMessage is the text recorded on an errored or failed message.
	ErrorMessage string

	// Category is network, timeout or server for transport failures.
	Category string

	// Err is the transport error of a failed turn.
	Err error
}

// Turn is a handle on one request/response cycle.
type Turn struct {
	// ID is the id of the assistant message this turn streams into.
	ID string
	// UserMessageID is the id of the user message that started the turn.
	UserMessageID string

	ctrl    *Controller
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}

	// Guarded by ctrl.mu.
	ended        bool
	errorMessage string
	outcome      Outcome

	lines   atomic.Int64
	dropped atomic.Int64
}

func newTurn(c *Controller, userID, assistantID string, cancel context.CancelFunc) *Turn {
	return &Turn{
		ID:            assistantID,
		UserMessageID: userID,
		ctrl:          c,
		cancel:        cancel,
		started:       time.Now(),
		done:          make(chan struct{}),
	}
}

// Stop ends this turn gracefully if it is still the active one.
func (t *Turn) Stop() bool {
	c := t.ctrl
	c.mu.Lock()
	if t.ended {
		c.mu.Unlock()
		return false
	}
	var out batch
	c.endLocked(t, telemetry.OutcomeStopped, nil, &out)
	c.mu.Unlock()

	c.hub.publish(out)
	return true
}

// Done is closed once the turn has ended and its final updates were delivered.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn ends or ctx is cancelled.
func (t *Turn) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome returns how the turn ended. It is the zero value until Done closes.
func (t *Turn) Outcome() Outcome {
	t.ctrl.mu.Lock()
	defer t.ctrl.mu.Unlock()
	return t.outcome
}

// Stats returns the number of lines framed and dropped. The values are final
// once the stream has been fully consumed or aborted.
func (t *Turn) Stats() (lines, dropped int) {
	return int(t.lines.Load()), int(t.dropped.Load())
}

// =============================================================================
// STREAM CONSUMPTION
// =============================================================================

// run issues the request and feeds every event to the accumulator.
func (c *Controller) run(ctx context.Context, turn *Turn, transport Transport, req client.ChatRequest) {
	body, err := transport.ChatStream(ctx, req)
	if err != nil {
		c.complete(ctx, turn, err)
		return
	}
	defer body.Close()

	reader := stream.NewReader(body)
	err = reader.Process(ctx, func(ev stream.Event) {
		c.metrics.ObserveEvent(ev.Kind().String())
		if !c.dispatch(turn, ev) {
			turn.cancel()
		}
	})

	turn.lines.Store(int64(reader.Lines()))
	turn.dropped.Store(int64(reader.Dropped()))
	c.metrics.ObserveStream(reader.Lines(), reader.Dropped())
	if reader.Dropped() > 0 {
		c.logger.Debug("dropped malformed lines",
			zap.String("turn_id", turn.ID),
			zap.Int("dropped", reader.Dropped()),
			zap.Int("lines", reader.Lines()),
		)
	}

	c.complete(ctx, turn, err)
}

// complete ends a turn whose stream is exhausted. Turns that already ended
// through Stop, an error event or a newer turn are left alone.
func (c *Controller) complete(ctx context.Context, turn *Turn, err error) {
	c.mu.Lock()
	var out batch
	switch {
	case turn.ended:
	case err == nil:
		c.endLocked(turn, telemetry.OutcomeFinished, nil, &out)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.endLocked(turn, telemetry.OutcomeFailed, timeoutError(err), &out)
	case ctx.Err() != nil:
		// Cancelling the caller's context ends the turn the same as Stop.
		c.endLocked(turn, telemetry.OutcomeStopped, nil, &out)
	default:
		c.endLocked(turn, telemetry.OutcomeFailed, err, &out)
	}
	c.mu.Unlock()

	c.hub.publish(out)
}

// timeoutError reports err as a transport timeout.
func timeoutError(err error) error {
	var ce *client.ClientError
	if errors.As(err, &ce) && ce.Type == client.ErrTypeTimeout {
		return err
	}
	return &client.ClientError{
		Type:    client.ErrTypeTimeout,
		Message: "chat stream timed out",
		Cause:   context.DeadlineExceeded,
	}
}

// dispatch applies one event. It reports false once the turn no longer
// accepts events.
func (c *Controller) dispatch(turn *Turn, ev stream.Event) bool {
	c.mu.Lock()
	if turn.ended {
		c.mu.Unlock()
		return false
	}

	h := &eventHandler{c: c, turn: turn}
	h.out.add(Update{Kind: UpdateEvent, TurnID: turn.ID, Event: ev})
	ev.Accept(h)

	if h.changed && !turn.ended && c.limiter.Allow() {
		if msg := c.acc.Streaming(); msg != nil {
			h.out.add(Update{Kind: UpdateMessage, TurnID: turn.ID, Message: msg.Clone()})
		}
	}
	accepting := !turn.ended
	c.mu.Unlock()

	c.hub.publish(h.out)
	return accepting
}

// =============================================================================
// EVENT HANDLER
// =============================================================================

// eventHandler maps stream events onto the accumulator. It runs with
// Controller.mu held.
type eventHandler struct {
	c       *Controller
	turn    *Turn
	out     batch
	changed bool
}

func (h *eventHandler) OnContent(ev stream.ContentEvent) {
	h.changed = h.c.acc.AppendContent(ev.Text)
	h.c.setPhaseLocked(h.turn, PhaseAnswering, &h.out)
}

func (h *eventHandler) OnReasoning(ev stream.ReasoningEvent) {
	h.changed = h.c.acc.AppendReasoning(ev.Text)
	h.c.setPhaseLocked(h.turn, PhaseThinking, &h.out)
}

func (h *eventHandler) OnPlan(ev stream.PlanEvent) {
	h.changed = h.c.acc.AppendPlan(ev.Text)
	h.c.setPhaseLocked(h.turn, PhaseThinking, &h.out)
}

func (h *eventHandler) OnStatus(ev stream.StatusEvent) {
	if ev.Status == stream.StatusSearching {
		h.c.setPhaseLocked(h.turn, PhaseSearching, &h.out)
		return
	}
	name, ok := ev.ToolName()
	if !ok {
		return
	}
	h.c.setPhaseLocked(h.turn, PhaseUsingTool, &h.out)
	if msg := h.c.acc.Streaming(); msg != nil && name != "" && !slices.Contains(msg.ToolsUsed, name) {
		h.changed = h.c.acc.RecordToolsUsed(append(slices.Clone(msg.ToolsUsed), name))
	}
}

func (h *eventHandler) OnContext(ev stream.ContextEvent) {
	h.c.usage = ev
	h.c.metrics.ObserveContext(ev.UsagePercent, ev.TotalTokens)
}

func (h *eventHandler) OnError(ev stream.ErrorEvent) {
	h.turn.errorMessage = ev.Message
	h.c.endLocked(h.turn, telemetry.OutcomeErrored, nil, &h.out)
}
