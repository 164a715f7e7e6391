// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// Cache collaborators persist messages as plain JSON maps. These helpers
// produce and consume that shape through the struct JSON encoding so the two
// never drift apart.

// ToMap converts the message into its JSON map form.
func (m *Message) ToMap() (map[string]any, error) {
	return toMap(m)
}

// MessageFromMap rebuilds a message from its JSON map form.
func MessageFromMap(data map[string]any) (*Message, error) {
	var msg Message
	if err := fromMap(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// ToMap converts the conversation into its JSON map form.
func (c *Conversation) ToMap() (map[string]any, error) {
	return toMap(c)
}

// ConversationFromMap rebuilds a conversation from its JSON map form. Each
// message is decoded with MessageFromMap so errors name the bad message.
func ConversationFromMap(data map[string]any) (*Conversation, error) {
	header := make(map[string]any, len(data))
	for k, v := range data {
		if k != "messages" {
			header[k] = v
		}
	}

	var c Conversation
	if err := fromMap(header, &c); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	c.Messages = make([]*Message, 0)

	raw, ok := data["messages"]
	if !ok || raw == nil {
		return &c, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("decode conversation: messages is %T, not a list", raw)
	}
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode conversation: message %d is %T, not an object", i, item)
		}
		msg, err := MessageFromMap(fields)
		if err != nil {
			return nil, fmt.Errorf("decode conversation: message %d: %w", i, err)
		}
		c.Messages = append(c.Messages, msg)
	}
	return &c, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromMap(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
