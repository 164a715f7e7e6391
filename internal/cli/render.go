// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Terminal rendering of controller updates.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/lexstream/internal/accumulator"
	"github.com/jeranaias/lexstream/internal/controller"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/stream"
	"github.com/jeranaias/lexstream/internal/tags"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// printer renders the updates of one conversation. Answer text goes to out;
// reasoning, tool activity and notices go to status.
//
// In live mode content fragments are written as they arrive. Otherwise the
// cleaned final message is written once the turn ends.
type printer struct {
	mu sync.Mutex

	out       io.Writer
	status    io.Writer
	live      bool
	reasoning bool
	quiet     bool

	final        *model.Message
	wroteContent bool
	inReasoning  bool
}

// Handle is the controller listener.
func (p *printer) Handle(u controller.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case controller.UpdateEvent:
		p.event(u.Event)
	case controller.UpdateMessage:
		if u.Message != nil && u.Message.ID == u.TurnID {
			p.final = u.Message
		}
	case controller.UpdateDone:
		p.done(u.Outcome)
	}
}

// notice writes a dim status line, ending any reasoning block first.
func (p *printer) notice(format string, args ...any) {
	if p.quiet {
		return
	}
	p.endReasoning()
	fmt.Fprintln(p.status, DimStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) event(ev stream.Event) {
	switch ev := ev.(type) {
	case stream.ContentEvent:
		if !p.live {
			return
		}
		p.endReasoning()
		fmt.Fprint(p.out, ev.Text)
		p.wroteContent = true

	case stream.ReasoningEvent, stream.PlanEvent:
		if !p.live || !p.reasoning {
			return
		}
		text := ""
		switch ev := ev.(type) {
		case stream.ReasoningEvent:
			text = ev.Text
		case stream.PlanEvent:
			text = ev.Text
		}
		if !p.inReasoning {
			fmt.Fprint(p.status, DimStyle.Render("Thinking: "))
			p.inReasoning = true
		}
		fmt.Fprint(p.status, DimStyle.Render(text))

	case stream.StatusEvent:
		if ev.Status == stream.StatusSearching {
			p.notice("[searching]")
		} else if name, ok := ev.ToolName(); ok {
			if name == "" {
				p.notice("[using tool]")
			} else {
				p.notice("[using tool: %s]", name)
			}
		}

	case stream.ContextEvent:
		if ev.Compacting {
			p.notice("[compacting context: %d%% of %d tokens]", ev.UsagePercent, ev.ContextWindowSize)
		}
	}
}

func (p *printer) endReasoning() {
	if p.inReasoning {
		fmt.Fprintln(p.status)
		p.inReasoning = false
	}
}

// done writes the end-of-turn summary. Errors are left to the caller.
func (p *printer) done(outcome *controller.Outcome) {
	p.endReasoning()
	defer func() {
		p.final = nil
		p.wroteContent = false
	}()
	if outcome == nil {
		return
	}

	msg := p.final
	switch {
	case p.live && p.wroteContent:
		fmt.Fprintln(p.out)
	case !p.live && msg != nil && msg.Content != "":
		fmt.Fprintln(p.out, strings.TrimRight(renderMarkdown(msg.Content), "\n"))
	}

	if outcome.Status == telemetry.OutcomeErrored || outcome.Status == telemetry.OutcomeFailed {
		return
	}

	writeReconcile(p.out, outcome.Result)
	if msg != nil {
		writeReferences(p.out, msg.Content)
	}
	writeQuestions(p.out, outcome.Questions)

	switch outcome.Status {
	case telemetry.OutcomeStopped:
		p.notice("[stopped] partial response kept")
	case telemetry.OutcomeSuperseded:
		p.notice("[superseded] partial response kept")
	}
}

// =============================================================================
// SECTIONS
// =============================================================================

// writeReconcile lists new artifacts in full and names the updated ones.
func writeReconcile(w io.Writer, result accumulator.FinishResult) {
	for _, a := range result.NewArtifacts {
		writeArtifact(w, a)
	}
	for _, u := range result.UpdatedArtifacts {
		fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Updated:"), HighlightStyle.Render(u.Title))
	}
	if n := len(result.SkippedEdits); n > 0 {
		targets := make([]string, 0, n)
		for _, e := range result.SkippedEdits {
			targets = append(targets, fmt.Sprintf("%q", e.Target))
		}
		fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("Skipped %d edit(s): no document titled %s", n, strings.Join(targets, ", "))))
	}
}

// writeArtifact renders one artifact as a titled block.
func writeArtifact(w io.Writer, a model.Artifact) {
	fmt.Fprintln(w)
	header := HighlightStyle.Render(a.Title) + " " + DimStyle.Render("("+string(a.Type)+")")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, RenderSeparator(40))

	content := a.Content
	if a.Type == model.ArtifactCode {
		content = highlightCode(content, a.Language)
	}
	fmt.Fprintln(w, strings.TrimRight(content, "\n"))
	fmt.Fprintln(w, RenderSeparator(40))
}

// writeReferences lists the legal citations in text.
func writeReferences(w io.Writer, text string) {
	refs := tags.ExtractLegalReferences(text)
	if len(refs) == 0 {
		return
	}
	fmt.Fprintln(w, SectionStyle.Render("References:"))
	for _, ref := range refs {
		fmt.Fprintf(w, "  %s %s\n", ref.Label, DimStyle.Render(ref.Scheme+"://"+ref.Code+"/"+ref.Number))
	}
}

// writeQuestions lists clarification questions with their options.
func writeQuestions(w io.Writer, questions []model.ClarifyQuestion) {
	if len(questions) == 0 {
		return
	}
	fmt.Fprintln(w, SectionStyle.Render("Before I continue:"))
	for i, q := range questions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q.Question)
		for _, opt := range q.Options {
			fmt.Fprintf(w, "     - %s\n", opt)
		}
		if q.Placeholder != "" {
			fmt.Fprintf(w, "     %s\n", DimStyle.Render(q.Placeholder))
		}
	}
}
