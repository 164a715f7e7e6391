// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"encoding/json"
	"strings"

	"github.com/jeranaias/lexstream/internal/model"
)

var editPattern = newBlockPattern(`<edit_artifact\s*>`, `</edit_artifact\s*>`)

// ExtractEdits parses the first edit block in text. The payload is one edit
// object or an array of them. Entries without a target or without usable
// replacements are discarded.
//
// On a parse failure, or when no valid entry remains, no edits are returned
// and text is returned unchanged. Otherwise the block is removed and the
// result trimmed.
func (e *Extractor) ExtractEdits(text string) ([]model.ArtifactEdit, string) {
	spans := editPattern.find(text, 1)
	if len(spans) == 0 {
		return nil, text
	}

	edits, ok := parseEdits(spans[0].groups[1])
	if !ok {
		return nil, text
	}
	return edits, strings.TrimSpace(removeSpans(text, spans))
}

func parseEdits(payload string) ([]model.ArtifactEdit, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, false
	}

	var raw []model.ArtifactEdit
	switch payload[0] {
	case '[':
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, false
		}
	case '{':
		var single model.ArtifactEdit
		if err := json.Unmarshal([]byte(payload), &single); err != nil {
			return nil, false
		}
		raw = append(raw, single)
	default:
		return nil, false
	}

	edits := make([]model.ArtifactEdit, 0, len(raw))
	for _, edit := range raw {
		edit.Target = strings.TrimSpace(edit.Target)
		if edit.Target == "" {
			continue
		}
		replacements := edit.Replacements[:0]
		for _, r := range edit.Replacements {
			if r.OldText != "" {
				replacements = append(replacements, r)
			}
		}
		if len(replacements) == 0 {
			continue
		}
		edit.Replacements = replacements
		edits = append(edits, edit)
	}

	if len(edits) == 0 {
		return nil, false
	}
	return edits, true
}
