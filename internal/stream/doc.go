// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the NDJSON chat event stream.
//
// The body of a chat response is a sequence of JSON objects, one per line,
// shaped {"t": kind, "v": payload}. Bytes arrive in arbitrary chunks; the
// Framer reassembles complete lines and DecodeLine maps each to one of six
// events. Malformed lines are dropped silently so a single bad record never
// halts a turn.
//
// # Key Types
//
//   - Event: sealed union of ContentEvent, ReasoningEvent, PlanEvent,
//     StatusEvent, ContextEvent and ErrorEvent
//   - Handler: one method per variant, used through Event.Accept
//   - Framer: chunk to line splitter with tail buffering
//   - Reader: drives Framer and DecodeLine over an io.Reader
//
// # Usage
//
//	reader := stream.NewReader(resp.Body)
//	err := reader.Process(ctx, func(ev stream.Event) {
//	    ev.Accept(handler)
//	})
package stream
