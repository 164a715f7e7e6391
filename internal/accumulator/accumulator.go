// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package accumulator

import (
	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/tags"
)

// DefaultErrorMessage is recorded when SetError is given an empty message.
const DefaultErrorMessage = "Unknown error"

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator owns the message list of one conversation and applies stream
// fragments to its in-flight assistant message.
//
// It is not safe for concurrent use. The stream controller serializes access.
type Accumulator struct {
	conv      *model.Conversation
	ids       model.IDGenerator
	extractor *tags.Extractor
	logger    *zap.Logger
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithIDGenerator sets the generator used for message ids.
func WithIDGenerator(ids model.IDGenerator) Option {
	return func(a *Accumulator) {
		if ids != nil {
			a.ids = ids
		}
	}
}

// WithExtractor sets the tag extractor used when a turn finishes.
func WithExtractor(ex *tags.Extractor) Option {
	return func(a *Accumulator) {
		if ex != nil {
			a.extractor = ex
		}
	}
}

// New creates an accumulator over conv. A nil conversation starts empty.
func New(conv *model.Conversation, opts ...Option) *Accumulator {
	a := &Accumulator{
		conv:   conv,
		ids:    model.NewUUIDGenerator("msg"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.conv == nil {
		a.conv = model.NewConversation(model.NewUUIDGenerator("conv").Next())
	}
	if a.extractor == nil {
		a.extractor = tags.New(model.NewUUIDGenerator("artifact"))
	}
	return a
}

// Conversation returns the live conversation. Callers must not mutate it while
// a turn is streaming.
func (a *Accumulator) Conversation() *model.Conversation {
	return a.conv
}

// Streaming returns the in-flight assistant message, or nil.
func (a *Accumulator) Streaming() *model.Message {
	last := a.conv.LastMessage()
	if !last.IsStreamingAssistant() {
		return nil
	}
	return last
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// BeginTurn appends a user message and an empty streaming assistant message.
// A previous assistant message that is still streaming is finished first.
func (a *Accumulator) BeginTurn(text string, attachments []model.Attachment) (user, assistant *model.Message) {
	if a.Streaming() != nil {
		a.FinishStreaming()
	}

	user = model.NewUserMessage(a.ids.Next(), a.conv.ID, text, attachments)
	assistant = model.NewAssistantPlaceholder(a.ids.Next(), a.conv.ID)
	a.conv.AddMessage(user)
	a.conv.AddMessage(assistant)
	return user, assistant
}

// AppendContent appends an answer fragment to the in-flight message.
// It reports false, and changes nothing, when no message is streaming.
func (a *Accumulator) AppendContent(fragment string) bool {
	msg := a.Streaming()
	if msg == nil {
		a.logger.Debug("dropped content after completion", zap.Int("bytes", len(fragment)))
		return false
	}
	msg.Content += fragment
	return true
}

// AppendReasoning appends a reasoning fragment to the in-flight message.
func (a *Accumulator) AppendReasoning(fragment string) bool {
	msg := a.Streaming()
	if msg == nil {
		a.logger.Debug("dropped reasoning after completion", zap.Int("bytes", len(fragment)))
		return false
	}
	msg.ReasoningContent += fragment
	return true
}

// AppendPlan appends a planning fragment to the in-flight message.
func (a *Accumulator) AppendPlan(fragment string) bool {
	msg := a.Streaming()
	if msg == nil {
		a.logger.Debug("dropped plan after completion", zap.Int("bytes", len(fragment)))
		return false
	}
	msg.PlanContent += fragment
	return true
}

// RecordArtifacts replaces the artifact snapshot of the in-flight message.
// The snapshot is reconciled together with extracted artifacts on finish.
func (a *Accumulator) RecordArtifacts(artifacts []model.Artifact) bool {
	msg := a.Streaming()
	if msg == nil {
		return false
	}
	msg.Artifacts = append([]model.Artifact(nil), artifacts...)
	return true
}

// RecordToolsUsed replaces the tool snapshot of the in-flight message.
func (a *Accumulator) RecordToolsUsed(tools []string) bool {
	msg := a.Streaming()
	if msg == nil {
		return false
	}
	msg.ToolsUsed = append([]string(nil), tools...)
	return true
}

// SetError ends the in-flight message as failed. No artifact or edit
// processing happens on this path.
func (a *Accumulator) SetError(message string) bool {
	msg := a.Streaming()
	if msg == nil {
		return false
	}
	if message == "" {
		message = DefaultErrorMessage
	}
	msg.IsStreaming = false
	msg.IsError = true
	msg.ErrorMessage = message
	a.conv.Touch()

	a.logger.Info("turn failed",
		zap.String("message_id", msg.ID),
		zap.String("error", message),
	)
	return true
}

// ExtractClarifyQuestions strips a clarification block from the last finished
// assistant message and returns its questions. The questions are not stored.
func (a *Accumulator) ExtractClarifyQuestions() []model.ClarifyQuestion {
	last := a.conv.LastMessage()
	if last == nil || last.Role != model.RoleAssistant || last.IsStreaming || last.IsError {
		return nil
	}

	questions, clean := a.extractor.ExtractClarify(last.Content)
	if clean != last.Content {
		last.Content = clean
	}
	return questions
}
