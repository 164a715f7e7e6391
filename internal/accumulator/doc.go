// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package accumulator applies stream fragments to a conversation and
// reconciles artifacts and edit directives when a turn completes.
//
// An assistant message moves from streaming to finished or errored exactly
// once. Fragments that arrive after that are ignored.
//
// # Key Types
//
//   - Accumulator: owns the message list of the active conversation
//   - FinishResult: what FinishStreaming created, updated and applied
//
// # Usage
//
//	acc := accumulator.New(conv, accumulator.WithLogger(logger))
//	acc.BeginTurn("Draft a lease", nil)
//	acc.AppendContent("<artifact type=\"Contract\" title=\"Lease\">...")
//	result, _ := acc.FinishStreaming()
//	questions := acc.ExtractClarifyQuestions()
package accumulator
