// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/lexstream/internal/model"
)

var clarifyPattern = newBlockPattern(`<clarify\s*>`, `</clarify\s*>`)

// clarifyEntry mirrors model.ClarifyQuestion with a lenient options field.
type clarifyEntry struct {
	ID          string            `json:"id"`
	Question    string            `json:"question"`
	Options     []json.RawMessage `json:"options"`
	Type        string            `json:"type"`
	Placeholder string            `json:"placeholder"`
}

// ExtractClarify parses the first clarification block in text, a JSON array of
// questions. Missing ids become q1..qn by position. A missing or unknown type
// becomes "select" when options are present, else "text". Questions with an
// empty prompt are dropped.
//
// On a parse failure no questions are returned and text is unchanged.
func (e *Extractor) ExtractClarify(text string) ([]model.ClarifyQuestion, string) {
	spans := clarifyPattern.find(text, 1)
	if len(spans) == 0 {
		return nil, text
	}

	var entries []clarifyEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(spans[0].groups[1])), &entries); err != nil {
		return nil, text
	}

	questions := make([]model.ClarifyQuestion, 0, len(entries))
	for i, entry := range entries {
		q := model.ClarifyQuestion{
			ID:          strings.TrimSpace(entry.ID),
			Question:    strings.TrimSpace(entry.Question),
			Options:     optionLabels(entry.Options),
			Type:        strings.ToLower(strings.TrimSpace(entry.Type)),
			Placeholder: entry.Placeholder,
		}
		if q.Question == "" {
			continue
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.Type != model.QuestionSelect && q.Type != model.QuestionText {
			q.Type = model.QuestionText
			if len(q.Options) > 0 {
				q.Type = model.QuestionSelect
			}
		}
		questions = append(questions, q)
	}

	return questions, strings.TrimSpace(removeSpans(text, spans))
}

// optionLabels keeps string options and the "label" field of object options.
func optionLabels(raw []json.RawMessage) []string {
	var labels []string
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				labels = append(labels, s)
			}
			continue
		}
		var obj struct {
			Label string `json:"label"`
		}
		if json.Unmarshal(r, &obj) == nil && strings.TrimSpace(obj.Label) != "" {
			labels = append(labels, strings.TrimSpace(obj.Label))
		}
	}
	return labels
}
