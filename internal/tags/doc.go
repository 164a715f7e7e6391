// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tags extracts structured blocks embedded in assistant text.
//
// Three pseudo-XML tag families are recognised, plus one inline link form:
//
//	<artifact type="Contract" title="Lease">...</artifact>
//	<edit_artifact>{"target": "Lease", "replacements": [...]}</edit_artifact>
//	<clarify>[{"question": "Which state?"}]</clarify>
//	[Art. 1101](civil://cc/1101)
//
// Every pass is pure and degrades to "nothing found, text unchanged" on
// malformed input. Blocks are found by scanning for an opening tag and then
// its closing tag, which keeps scans linear in the text length. A match
// timeout backs this up; matches found before it trips are kept.
//
// # Key Types
//
//   - Extractor: artifact, edit and clarification extraction
//   - LegalReference: an inline citation with its byte offsets
//
// # Usage
//
//	ex := tags.New(model.NewUUIDGenerator("art"))
//	artifacts, clean := ex.ExtractArtifacts(msg.Content)
//	edits, clean := ex.ExtractEdits(clean)
package tags
