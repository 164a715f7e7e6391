// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller orchestrates chat turns.
//
// A turn appends the user message and a streaming assistant placeholder,
// requests the response through a Transport, decodes the NDJSON body and
// drives the accumulator event by event. A natural end of stream finishes the
// message and extracts clarification questions. An error event or transport
// failure marks it errored. Stop, a cancelled context, or a newer turn end it
// gracefully with whatever content arrived.
//
// Listeners receive updates in the order they were produced, without the
// controller lock held. A listener may call Stop or SendTurn; it must not
// wait on a turn's Done channel.
//
// # Key Types
//
//   - Controller: owns the conversation and the single active turn
//   - Turn: handle for Stop, Wait and the final Outcome
//   - Update: listener notification (event, phase, message, clarify, done)
//
// # Usage
//
//	ctrl := controller.New(conv, client.NewClient(cfg), controller.WithLogger(logger))
//	unsubscribe := ctrl.Subscribe(func(u controller.Update) { render(u) })
//	defer unsubscribe()
//	turn, err := ctrl.SendTurn(ctx, "Draft a lease", controller.TurnOptions{})
//	outcome, err := turn.Wait(ctx)
package controller
