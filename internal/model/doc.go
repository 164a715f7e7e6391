// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the stream pipeline:
// conversations, messages, artifacts extracted from assistant text, edit
// directives that rewrite those artifacts, and clarification questions.
//
// # Key Types
//
//   - Conversation: ordered message list for one chat
//   - Message: user or assistant message with reasoning, plan, artifacts and lifecycle flags
//   - Artifact: titled document or code block; the normalized title is its identity
//   - ArtifactEdit: search/replace directive addressed to an artifact by title
//   - ClarifyQuestion: follow-up question surfaced to the UI
//   - IDGenerator: injected id source (UUID or sequence)
//
// # Usage
//
//	ids := model.NewSequenceGenerator("msg")
//	conv := model.NewConversation("conv-1")
//	conv.AddMessage(model.NewUserMessage(ids.Next(), conv.ID, "Draft an NDA", nil))
//	conv.AddMessage(model.NewAssistantPlaceholder(ids.Next(), conv.ID))
//
// Messages and conversations convert to plain JSON maps with ToMap and back
// with MessageFromMap and ConversationFromMap. Storage persists that form.
package model
