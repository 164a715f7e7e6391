// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Turn execution shared by chat and replay.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/accumulator"
	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/controller"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/storage"
	"github.com/jeranaias/lexstream/internal/stream"
	"github.com/jeranaias/lexstream/internal/tags"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// =============================================================================
// SESSION
// =============================================================================

// sessionOptions configures a session.
type sessionOptions struct {
	Transport controller.Transport

	// Conversation to continue; nil starts a new one.
	Conversation *model.Conversation

	// Store saves the conversation after every turn when set.
	Store storage.Store

	// Usage records every turn when set.
	Usage *telemetry.UsageTracker

	Live      bool
	Reasoning bool
	Quiet     bool

	// Diff prints a diff of every artifact a turn updated.
	Diff bool

	Flags       client.Flags
	Attachments []model.Attachment

	// IDs overrides the message id generator.
	IDs model.IDGenerator
}

// session runs turns for one conversation and records their results.
type session struct {
	env   *Env
	ctrl  *controller.Controller
	store storage.Store
	usage *telemetry.UsageTracker
	opts  controller.TurnOptions
	diff  bool

	unsubscribe func()
}

func newSession(env *Env, o sessionOptions) *session {
	ctrlOpts := []controller.Option{
		controller.WithLogger(env.Logger),
		controller.WithMetrics(env.Metrics),
		controller.WithNotifyRate(float64(env.Config.Stream.NotifyFPS)),
	}
	if o.IDs != nil {
		ctrlOpts = append(ctrlOpts, controller.WithIDGenerator(o.IDs))
	}

	s := &session{
		env:   env,
		ctrl:  controller.New(o.Conversation, o.Transport, ctrlOpts...),
		store: o.Store,
		usage: o.Usage,
		opts: controller.TurnOptions{
			Attachments: o.Attachments,
			Flags:       o.Flags,
		},
		diff:        o.Diff,
		unsubscribe: func() {},
	}

	if !env.JSON {
		p := &printer{
			out:       env.Stdout,
			status:    env.Stderr,
			live:      o.Live,
			reasoning: o.Reasoning,
			quiet:     o.Quiet,
		}
		s.unsubscribe = s.ctrl.Subscribe(p.Handle)
	}
	return s
}

// ConversationID returns the id of the conversation being driven.
func (s *session) ConversationID() string {
	return s.ctrl.Messages().ID
}

// Close detaches the printer and stores the usage session.
func (s *session) Close() {
	s.unsubscribe()
	if s.usage != nil {
		if err := s.usage.EndSession(); err != nil {
			s.env.Logger.Warn("failed to store usage session", zap.Error(err))
		}
	}
}

// =============================================================================
// TURNS
// =============================================================================

// turnResult is the machine-readable summary of one turn.
type turnResult struct {
	ConversationID   string                       `json:"conversation_id"`
	TurnID           string                       `json:"turn_id"`
	Outcome          string                       `json:"outcome"`
	Message          *model.Message               `json:"message,omitempty"`
	Questions        []model.ClarifyQuestion      `json:"questions,omitempty"`
	NewArtifacts     []model.Artifact             `json:"new_artifacts,omitempty"`
	UpdatedArtifacts []accumulator.ArtifactUpdate `json:"updated_artifacts,omitempty"`
	SkippedEdits     []model.ArtifactEdit         `json:"skipped_edits,omitempty"`
	Diffs            []artifactDiff               `json:"diffs,omitempty"`
	References       []tags.LegalReference        `json:"references,omitempty"`
	Context          stream.ContextEvent          `json:"context"`
	Error            string                       `json:"error,omitempty"`
	Category         string                       `json:"category,omitempty"`
	Duration         time.Duration                `json:"duration"`
}

// Send runs one turn to completion. Interrupts stop the turn gracefully.
// Errored and failed turns return a *TurnError alongside their result.
func (s *session) Send(ctx context.Context, text string) (turnResult, error) {
	started := time.Now()
	before := artifactContents(s.ctrl.Messages())
	turn, err := s.ctrl.SendTurn(ctx, text, s.opts)
	if err != nil {
		return turnResult{}, err
	}
	// Attachments go with the first message only.
	s.opts.Attachments = nil

	release := stopOnInterrupt(turn)
	<-turn.Done()
	release()

	outcome := turn.Outcome()
	elapsed := time.Since(started)
	s.record(turn, text, outcome, elapsed)

	if s.store != nil {
		if err := s.store.Save(s.ctrl.Messages()); err != nil {
			s.env.Logger.Warn("failed to save conversation", zap.Error(err))
			fmt.Fprintln(s.env.Stderr, WarningStyle.Render("Warning: conversation not saved: "+err.Error()))
		}
	}

	res := s.result(turn, outcome, elapsed, before)
	if s.diff && !s.env.JSON {
		writeDiffs(s.env.Stdout, res.Diffs)
	}
	return res, turnError(outcome)
}

func (s *session) result(turn *controller.Turn, outcome controller.Outcome, elapsed time.Duration, before map[string]string) turnResult {
	conv := s.ctrl.Messages()
	res := turnResult{
		ConversationID:   conv.ID,
		TurnID:           turn.ID,
		Outcome:          outcome.Status,
		Message:          conv.MessageByID(turn.ID),
		Questions:        outcome.Questions,
		NewArtifacts:     outcome.Result.NewArtifacts,
		UpdatedArtifacts: outcome.Result.UpdatedArtifacts,
		SkippedEdits:     outcome.Result.SkippedEdits,
		Diffs:            artifactDiffs(before, conv, outcome.Result.UpdatedArtifacts),
		Context:          s.ctrl.Context(),
		Error:            outcome.ErrorMessage,
		Category:         outcome.Category,
		Duration:         elapsed,
	}
	if res.Message != nil {
		res.References = tags.ExtractLegalReferences(res.Message.Content)
	}
	return res
}

func (s *session) record(turn *controller.Turn, prompt string, outcome controller.Outcome, elapsed time.Duration) {
	if s.usage == nil {
		return
	}
	lines, dropped := turn.Stats()
	usage := s.ctrl.Context()
	s.usage.Record(telemetry.TurnRecord{
		Timestamp:    time.Now(),
		TurnID:       turn.ID,
		Prompt:       prompt,
		Outcome:      outcome.Status,
		Duration:     elapsed,
		Lines:        lines,
		Dropped:      dropped,
		TotalTokens:  usage.TotalTokens,
		UsagePercent: usage.UsagePercent,
		Artifacts:    len(outcome.Result.NewArtifacts) + len(outcome.Result.UpdatedArtifacts),
		Edits:        len(outcome.Result.AppliedEdits),
	})
}

// report writes res as the JSON response in JSON mode and returns turnErr.
// An errored turn still carries its result in the error response.
func report(env *Env, command string, res turnResult, turnErr error) error {
	if !env.JSON {
		return turnErr
	}
	resp := NewJSONResponse(command, res)
	if turnErr != nil {
		resp = NewJSONErrorResponse(command, turnErr)
		resp.Data = res
	}
	if err := resp.Write(env.Stdout); err != nil {
		return err
	}
	if turnErr != nil {
		return reportedError{turnErr}
	}
	return nil
}

// turnError converts an errored or failed outcome into a *TurnError.
func turnError(o controller.Outcome) error {
	switch o.Status {
	case telemetry.OutcomeErrored:
		return &TurnError{Status: o.Status, Message: o.ErrorMessage}
	case telemetry.OutcomeFailed:
		return &TurnError{Status: o.Status, Message: o.ErrorMessage, Category: o.Category, Err: o.Err}
	default:
		return nil
	}
}

// stopOnInterrupt stops turn on the first SIGINT or SIGTERM until the
// returned release function is called.
func stopOnInterrupt(turn *controller.Turn) (release func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sig:
			turn.Stop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}
