// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"github.com/jeranaias/lexstream/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one prior message sent as context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Flags toggles server-side features for a turn.
type Flags struct {
	WebSearch    bool `json:"webSearch,omitempty"`
	DeepThinking bool `json:"deepThinking,omitempty"`
	Agent        bool `json:"agent,omitempty"`
}

// ChatRequest is the body of a streaming chat request.
type ChatRequest struct {
	ConversationID string             `json:"conversationId"`
	Messages       []ChatMessage      `json:"messages"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
	Flags          Flags              `json:"flags"`
}

// errorBody is the JSON error shape returned with non-200 responses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BuildMessages converts conversation history into request messages.
// Streaming, errored and empty messages are skipped.
func BuildMessages(msgs []*model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.IsStreaming || m.IsError || m.Content == "" {
			continue
		}
		out = append(out, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return out
}
