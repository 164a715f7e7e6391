// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/lexstream/internal/accumulator"
	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/stream"
	"github.com/jeranaias/lexstream/internal/tags"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// DefaultNotifyRate caps streaming message updates per second.
const DefaultNotifyRate = 30

// ErrEmptyTurn is returned by SendTurn when there is nothing to send.
var ErrEmptyTurn = errors.New("turn has no text and no attachments")

// =============================================================================
// TYPES
// =============================================================================

// Transport issues a chat request and returns the NDJSON response body.
type Transport interface {
	ChatStream(ctx context.Context, req client.ChatRequest) (io.ReadCloser, error)
}

// Phase is the activity indicator of the current turn.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseThinking  Phase = "thinking"
	PhaseAnswering Phase = "answering"
	PhaseSearching Phase = "searching"
	PhaseUsingTool Phase = "using_tool"
)

// TurnOptions carries the request parameters of a turn.
type TurnOptions struct {
	Attachments []model.Attachment
	Flags       client.Flags
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs chat turns for one conversation. At most one turn is active;
// starting another supersedes it.
//
// All conversation state is mutated under mu. Listeners are called without mu
// held, in the order the updates were produced.
type Controller struct {
	mu        sync.Mutex
	acc       *accumulator.Accumulator
	transport Transport
	active    *Turn
	phase     Phase
	usage     stream.ContextEvent

	logger     *zap.Logger
	metrics    *telemetry.Metrics
	limiter    *rate.Limiter
	notifyRate float64
	ids        model.IDGenerator

	hub *hub
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithIDGenerator sets the generator for message and artifact ids.
func WithIDGenerator(ids model.IDGenerator) Option {
	return func(c *Controller) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithNotifyRate caps streaming message updates per second. Values <= 0
// disable the cap.
func WithNotifyRate(perSecond float64) Option {
	return func(c *Controller) {
		c.notifyRate = perSecond
	}
}

// New creates a controller for conv. A nil conversation starts a new one.
func New(conv *model.Conversation, transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:  transport,
		phase:      PhaseIdle,
		logger:     zap.NewNop(),
		notifyRate: DefaultNotifyRate,
		ids:        model.NewUUIDGenerator(""),
		hub:        newHub(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.limiter = newLimiter(c.notifyRate)

	if conv == nil {
		conv = model.NewConversation(c.ids.Next())
	}
	c.acc = accumulator.New(conv,
		accumulator.WithLogger(c.logger),
		accumulator.WithIDGenerator(c.ids),
		accumulator.WithExtractor(tags.New(c.ids)),
	)
	return c
}

// =============================================================================
// TURNS
// =============================================================================

// SendTurn appends the user message and a streaming assistant placeholder,
// then streams the response in the background. Any active turn is cancelled
// and finished first.
//
// ctx bounds the whole turn. Cancelling it stops the turn gracefully; a
// passed deadline fails it as a timeout.
func (c *Controller) SendTurn(ctx context.Context, text string, opts TurnOptions) (*Turn, error) {
	if strings.TrimSpace(text) == "" && len(opts.Attachments) == 0 {
		return nil, ErrEmptyTurn
	}

	c.mu.Lock()
	var out batch
	if prev := c.active; prev != nil {
		c.endLocked(prev, telemetry.OutcomeSuperseded, nil, &out)
	}

	user, assistant := c.acc.BeginTurn(text, opts.Attachments)
	conv := c.acc.Conversation()
	req := client.ChatRequest{
		ConversationID: conv.ID,
		Messages:       client.BuildMessages(conv.Messages),
		Attachments:    append([]model.Attachment(nil), opts.Attachments...),
		Flags:          opts.Flags,
	}

	transport := c.transport
	turnCtx, cancel := context.WithCancel(ctx)
	turn := newTurn(c, user.ID, assistant.ID, cancel)
	c.active = turn

	out.add(Update{Kind: UpdateMessage, TurnID: turn.ID, Message: user.Clone()})
	out.add(Update{Kind: UpdateMessage, TurnID: turn.ID, Message: assistant.Clone()})
	c.setPhaseLocked(turn, PhaseThinking, &out)
	c.mu.Unlock()

	c.logger.Info("turn started",
		zap.String("turn_id", turn.ID),
		zap.String("conversation_id", req.ConversationID),
		zap.Int("history", len(req.Messages)),
	)

	c.hub.publish(out)
	go c.run(turnCtx, turn, transport, req)
	return turn, nil
}

// Stop ends the active turn as a graceful completion: the request is
// cancelled and the partial message is finished at once. Events that arrive
// later are not applied. It returns false when no turn is active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	turn := c.active
	if turn == nil {
		c.mu.Unlock()
		return false
	}
	var out batch
	c.endLocked(turn, telemetry.OutcomeStopped, nil, &out)
	c.mu.Unlock()

	c.hub.publish(out)
	return true
}

// Active returns the running turn, or nil.
func (c *Controller) Active() *Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Messages returns a deep copy of the conversation.
func (c *Controller) Messages() *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.Conversation().Clone()
}

// Phase returns the current activity indicator.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Context returns the latest context window telemetry.
func (c *Controller) Context() stream.ContextEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// SetTransport replaces the transport of later turns. An active turn keeps
// the transport it started with.
func (c *Controller) SetTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

// SetNotifyRate changes the cap on streaming message updates. Values <= 0
// disable the cap.
func (c *Controller) SetNotifyRate(perSecond float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyRate = perSecond
	c.limiter = newLimiter(perSecond)
}

// Subscribe registers fn for every update. The returned function removes it.
// fn must not block for long; it runs on the goroutine that produced the update.
func (c *Controller) Subscribe(fn func(Update)) (unsubscribe func()) {
	return c.hub.subscribe(fn)
}

// =============================================================================
// INTERNAL
// =============================================================================

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond > 0 {
		return rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return rate.NewLimiter(rate.Inf, 0)
}

func (c *Controller) setPhaseLocked(turn *Turn, phase Phase, out *batch) {
	if c.phase == phase {
		return
	}
	c.phase = phase
	out.add(Update{Kind: UpdatePhase, TurnID: turn.ID, Phase: phase})
}

// endLocked moves turn to its terminal state. Must hold mu. Safe to call more
// than once; only the first call has an effect.
func (c *Controller) endLocked(turn *Turn, status string, cause error, out *batch) {
	if turn.ended {
		return
	}
	turn.ended = true
	turn.cancel()
	if c.active == turn {
		c.active = nil
	}

	outcome := Outcome{Status: status, Err: cause}
	switch status {
	case telemetry.OutcomeErrored, telemetry.OutcomeFailed:
		msg := turn.errorMessage
		if msg == "" && cause != nil {
			msg = cause.Error()
		}
		c.acc.SetError(msg)
		outcome.ErrorMessage = msg
		if cause != nil {
			outcome.Category = client.Category(cause)
		}
	default:
		if result, ok := c.acc.FinishStreaming(); ok {
			outcome.Result = result
			c.metrics.ObserveReconcile(
				len(result.NewArtifacts),
				len(result.UpdatedArtifacts),
				len(result.AppliedEdits),
				len(result.SkippedEdits),
			)
		}
		outcome.Questions = c.acc.ExtractClarifyQuestions()
	}
	turn.outcome = outcome

	elapsed := time.Since(turn.started)
	c.metrics.ObserveTurn(status, elapsed)

	if msg := c.acc.Conversation().MessageByID(turn.ID); msg != nil {
		out.add(Update{Kind: UpdateMessage, TurnID: turn.ID, Message: msg.Clone()})
	}
	if len(outcome.Questions) > 0 {
		out.add(Update{Kind: UpdateClarify, TurnID: turn.ID, Questions: outcome.Questions})
	}
	c.setPhaseLocked(turn, PhaseIdle, out)
	out.add(Update{Kind: UpdateDone, TurnID: turn.ID, Outcome: &outcome})
	out.finish(turn)

	fields := []zap.Field{
		zap.String("turn_id", turn.ID),
		zap.String("outcome", status),
		zap.Duration("elapsed", elapsed),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if status == telemetry.OutcomeFailed {
		c.logger.Warn("turn ended", fields...)
	} else {
		c.logger.Info("turn ended", fields...)
	}
}
