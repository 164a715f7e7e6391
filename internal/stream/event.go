// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// =============================================================================
// EVENT KINDS
// =============================================================================

// Kind identifies the variant of an Event. The values match the wire
// discriminator "t".
type Kind string

const (
	KindContent   Kind = "c"
	KindReasoning Kind = "r"
	KindPlan      Kind = "p"
	KindStatus    Kind = "s"
	KindContext   Kind = "x"
	KindError     Kind = "e"
)

// String returns a readable name for metrics and logs.
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindReasoning:
		return "reasoning"
	case KindPlan:
		return "plan"
	case KindStatus:
		return "status"
	case KindContext:
		return "context"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// EVENT UNION
// =============================================================================

// Event is one decoded stream record. The set of implementations is closed:
// only this package can add variants, and every variant must be handled by
// Handler.
type Event interface {
	Kind() Kind
	Accept(h Handler)
	sealed()
}

// Handler receives events through Event.Accept. Adding a variant adds a method
// here, so every dispatch site stops compiling until it handles the new kind.
type Handler interface {
	OnContent(ContentEvent)
	OnReasoning(ReasoningEvent)
	OnPlan(PlanEvent)
	OnStatus(StatusEvent)
	OnContext(ContextEvent)
	OnError(ErrorEvent)
}

// ContentEvent carries an answer text fragment.
type ContentEvent struct {
	Text string
}

// ReasoningEvent carries a reasoning text fragment.
type ReasoningEvent struct {
	Text string
}

// PlanEvent carries a planning text fragment.
type PlanEvent struct {
	Text string
}

// StatusEvent carries a lifecycle status such as "searching" or "using_tool:web".
type StatusEvent struct {
	Status string
}

// ContextEvent carries token and context window telemetry.
type ContextEvent struct {
	UsagePercent      int
	TotalTokens       int
	ContextWindowSize int
	Compacting        bool
}

// ErrorEvent is a terminal error signalled by the server.
type ErrorEvent struct {
	Message string
}

func (ContentEvent) Kind() Kind   { return KindContent }
func (ReasoningEvent) Kind() Kind { return KindReasoning }
func (PlanEvent) Kind() Kind      { return KindPlan }
func (StatusEvent) Kind() Kind    { return KindStatus }
func (ContextEvent) Kind() Kind   { return KindContext }
func (ErrorEvent) Kind() Kind     { return KindError }

func (e ContentEvent) Accept(h Handler)   { h.OnContent(e) }
func (e ReasoningEvent) Accept(h Handler) { h.OnReasoning(e) }
func (e PlanEvent) Accept(h Handler)      { h.OnPlan(e) }
func (e StatusEvent) Accept(h Handler)    { h.OnStatus(e) }
func (e ContextEvent) Accept(h Handler)   { h.OnContext(e) }
func (e ErrorEvent) Accept(h Handler)     { h.OnError(e) }

func (ContentEvent) sealed()   {}
func (ReasoningEvent) sealed() {}
func (PlanEvent) sealed()      {}
func (StatusEvent) sealed()    {}
func (ContextEvent) sealed()   {}
func (ErrorEvent) sealed()     {}

// =============================================================================
// STATUS HELPERS
// =============================================================================

// Well-known status values.
const (
	StatusSearching = "searching"
	StatusUsingTool = "using_tool"
)

// ToolName returns the tool named by a "using_tool[:name]" status.
// The second result is false for any other status.
func (e StatusEvent) ToolName() (string, bool) {
	if e.Status == StatusUsingTool {
		return "", true
	}
	if len(e.Status) > len(StatusUsingTool) && e.Status[:len(StatusUsingTool)+1] == StatusUsingTool+":" {
		return e.Status[len(StatusUsingTool)+1:], true
	}
	return "", false
}
