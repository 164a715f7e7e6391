// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE STATE
// =============================================================================

// State is the lifecycle state of a message.
// Assistant messages move from StateStreaming to exactly one terminal state.
type State string

const (
	StateStreaming State = "streaming"
	StateFinished  State = "finished"
	StateErrored   State = "errored"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Attachment is a file reference sent along with a user message.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Timestamp      time.Time `json:"timestamp"`

	// Content
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoningContent,omitempty"`
	PlanContent      string `json:"planContent,omitempty"`

	// Reconciled structure (assistant messages)
	Artifacts    []Artifact     `json:"artifacts,omitempty"`
	AppliedEdits []ArtifactEdit `json:"appliedEdits,omitempty"`
	ToolsUsed    []string       `json:"toolsUsed,omitempty"`

	// User input extras
	Attachments []Attachment `json:"attachments,omitempty"`

	// Lifecycle
	IsStreaming  bool   `json:"isStreaming"`
	IsError      bool   `json:"isError"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// NewMessage creates a new finished message.
func NewMessage(id, conversationID string, role Role, content string) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(id, conversationID, content string, attachments []Attachment) *Message {
	msg := NewMessage(id, conversationID, RoleUser, content)
	if len(attachments) > 0 {
		msg.Attachments = append([]Attachment(nil), attachments...)
	}
	return msg
}

// NewAssistantPlaceholder creates an empty assistant message in the streaming state.
func NewAssistantPlaceholder(id, conversationID string) *Message {
	msg := NewMessage(id, conversationID, RoleAssistant, "")
	msg.IsStreaming = true
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// State returns the lifecycle state derived from the streaming and error flags.
func (m *Message) State() State {
	switch {
	case m.IsStreaming:
		return StateStreaming
	case m.IsError:
		return StateErrored
	default:
		return StateFinished
	}
}

// IsStreamingAssistant reports whether the message can still receive stream fragments.
func (m *Message) IsStreamingAssistant() bool {
	return m != nil && m.Role == RoleAssistant && m.IsStreaming
}

// FindArtifact returns the index of the first artifact whose normalized title
// matches, or -1.
func (m *Message) FindArtifact(title string) int {
	key := NormalizeTitle(title)
	for i := range m.Artifacts {
		if NormalizeTitle(m.Artifacts[i].Title) == key {
			return i
		}
	}
	return -1
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content of any kind.
func (m *Message) IsEmpty() bool {
	return m.Content == "" && m.ReasoningContent == "" && m.PlanContent == "" && len(m.Artifacts) == 0
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.Artifacts != nil {
		c.Artifacts = append([]Artifact(nil), m.Artifacts...)
	}
	if m.AppliedEdits != nil {
		c.AppliedEdits = make([]ArtifactEdit, len(m.AppliedEdits))
		for i, e := range m.AppliedEdits {
			c.AppliedEdits[i] = e.Clone()
		}
	}
	if m.ToolsUsed != nil {
		c.ToolsUsed = append([]string(nil), m.ToolsUsed...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return &c
}
