// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lexstream/internal/model"
)

func newTestExtractor() *Extractor {
	return New(model.NewSequenceGenerator("a"))
}

// =============================================================================
// ARTIFACT TESTS
// =============================================================================

func TestExtractArtifacts_CodeScenario(t *testing.T) {
	ex := newTestExtractor()

	artifacts, clean := ex.ExtractArtifacts(`<artifact type="CODE" title="Foo">print(1)</artifact>`)

	require.Len(t, artifacts, 1)
	assert.Equal(t, model.Artifact{
		ID:       "a-1",
		Type:     model.ArtifactCode,
		Title:    "Foo",
		Content:  "print(1)",
		Language: "python",
	}, artifacts[0])
	assert.Equal(t, "", clean)
}

func TestExtractArtifacts_Multiple(t *testing.T) {
	ex := newTestExtractor()
	text := "Here is the draft.\n\n" +
		"<artifact title='Lease Agreement' type=\"contract\">\n  Party A leases to Party B.\n</artifact>\n" +
		"And the claim:\n" +
		"<artifact type=\"Claim\" title=\"Deposit &amp; Fees\">Return the deposit.</artifact>\n" +
		"Done."

	artifacts, clean := ex.ExtractArtifacts(text)

	require.Len(t, artifacts, 2)
	assert.Equal(t, "a-1", artifacts[0].ID)
	assert.Equal(t, model.ArtifactContract, artifacts[0].Type)
	assert.Equal(t, "Lease Agreement", artifacts[0].Title)
	assert.Equal(t, "Party A leases to Party B.", artifacts[0].Content)
	assert.Empty(t, artifacts[0].Language)

	assert.Equal(t, "a-2", artifacts[1].ID)
	assert.Equal(t, model.ArtifactClaim, artifacts[1].Type)
	assert.Equal(t, "Deposit & Fees", artifacts[1].Title)

	assert.Equal(t, "Here is the draft.\n\n\nAnd the claim:\n\nDone.", clean)
}

func TestExtractArtifacts_Defaults(t *testing.T) {
	ex := newTestExtractor()

	artifacts, _ := ex.ExtractArtifacts(`<artifact type="memo" title="  ">body</artifact>`)
	require.Len(t, artifacts, 1)
	assert.Equal(t, model.ArtifactDocument, artifacts[0].Type)
	assert.Equal(t, model.DefaultArtifactTitle, artifacts[0].Title)

	artifacts, _ = ex.ExtractArtifacts(`<artifact>bare</artifact>`)
	require.Len(t, artifacts, 1)
	assert.Equal(t, model.ArtifactDocument, artifacts[0].Type)
	assert.Equal(t, model.DefaultArtifactTitle, artifacts[0].Title)
	assert.Equal(t, "bare", artifacts[0].Content)
}

func TestExtractArtifacts_NonGreedy(t *testing.T) {
	ex := newTestExtractor()
	text := `<artifact type="Document" title="A">one</artifact> mid <artifact type="Document" title="B">two</artifact>`

	artifacts, clean := ex.ExtractArtifacts(text)

	require.Len(t, artifacts, 2)
	assert.Equal(t, "one", artifacts[0].Content)
	assert.Equal(t, "two", artifacts[1].Content)
	assert.Equal(t, "mid", clean)
}

func TestExtractArtifacts_NoMatchReturnsOriginal(t *testing.T) {
	ex := newTestExtractor()
	text := "  plain answer with trailing space \n"

	artifacts, clean := ex.ExtractArtifacts(text)

	assert.Empty(t, artifacts)
	assert.Equal(t, text, clean)
}

func TestExtractArtifacts_UnclosedTagIsText(t *testing.T) {
	ex := newTestExtractor()
	text := `<artifact type="Code" title="x">still streaming`

	artifacts, clean := ex.ExtractArtifacts(text)

	assert.Empty(t, artifacts)
	assert.Equal(t, text, clean)
}

func TestExtractArtifacts_Idempotent(t *testing.T) {
	ex := newTestExtractor()
	text := "Intro <artifact type=\"Analysis\" title=\"Risk\">Low risk.</artifact> outro"

	first, clean := ex.ExtractArtifacts(text)
	require.Len(t, first, 1)

	second, again := ex.ExtractArtifacts(clean)
	assert.Empty(t, second)
	assert.Equal(t, clean, again)
}

func TestExtractArtifacts_IgnoresEditBlocks(t *testing.T) {
	ex := newTestExtractor()
	text := `<edit_artifact>{"target":"A","replacements":[{"oldText":"x","newText":"y"}]}</edit_artifact>`

	artifacts, clean := ex.ExtractArtifacts(text)

	assert.Empty(t, artifacts)
	assert.Equal(t, text, clean)
}

func TestExtractArtifacts_QuotedGreaterThan(t *testing.T) {
	ex := newTestExtractor()

	artifacts, clean := ex.ExtractArtifacts(`See <artifact type="Document" title="Terms > Conditions">Body</artifact>`)

	require.Len(t, artifacts, 1)
	assert.Equal(t, "Terms > Conditions", artifacts[0].Title)
	assert.Equal(t, "Body", artifacts[0].Content)
	assert.Equal(t, "See", clean)
}

func TestExtractArtifacts_RejectsLookalikeTags(t *testing.T) {
	ex := newTestExtractor()

	for _, text := range []string{
		`<artifact-like note>x</artifact>`,
		`<artifact-tag title="x">y</artifact>`,
		`<artifacts title="x">y</artifact>`,
	} {
		artifacts, clean := ex.ExtractArtifacts(text)
		assert.Empty(t, artifacts, text)
		assert.Equal(t, text, clean)
	}
}

func TestExtractArtifacts_LargeBody(t *testing.T) {
	ex := newTestExtractor()
	body := strings.Repeat("The tenant shall pay rent on the first day of each month.\n", 40000)
	text := "Draft:\n<artifact type=\"Contract\" title=\"Lease\">" + body + "</artifact>\nDone."

	artifacts, clean := ex.ExtractArtifacts(text)

	require.Len(t, artifacts, 1)
	assert.Equal(t, strings.TrimSpace(body), artifacts[0].Content)
	assert.Equal(t, "Draft:\n\nDone.", clean)
}

func TestExtractArtifacts_ValidBlockAmidLookalikes(t *testing.T) {
	ex := newTestExtractor()
	var b strings.Builder
	b.WriteString(strings.Repeat("Plain prose about the lease terms. ", 5000))
	b.WriteString(`<artifact type="Code" title="Good">print(1)</artifact>`)
	for i := 0; i < 3000; i++ {
		b.WriteString("\n<artifact-like note> unrelated markup")
	}

	artifacts, clean := ex.ExtractArtifacts(b.String())

	require.Len(t, artifacts, 1)
	assert.Equal(t, "Good", artifacts[0].Title)
	assert.Equal(t, "print(1)", artifacts[0].Content)
	assert.NotContains(t, clean, `title="Good"`)
}

func TestExtractArtifacts_ManyUnclosedOpeners(t *testing.T) {
	ex := newTestExtractor()
	text := strings.Repeat(`<artifact type="Code" title="x">partial `, 5000)

	artifacts, clean := ex.ExtractArtifacts(text)

	assert.Empty(t, artifacts)
	assert.Equal(t, text, clean)
}

func TestExtractArtifacts_SameResultEveryRun(t *testing.T) {
	ex := newTestExtractor()
	text := strings.Repeat("filler ", 20000) +
		`<artifact title="A">one</artifact>` +
		strings.Repeat("<artifact-like> ", 2000) +
		`<artifact title="B">two</artifact>`

	first, firstClean := ex.ExtractArtifacts(text)
	require.Len(t, first, 2)
	for i := 0; i < 3; i++ {
		again, againClean := ex.ExtractArtifacts(text)
		require.Len(t, again, 2)
		assert.Equal(t, first[0].Content, again[0].Content)
		assert.Equal(t, first[1].Content, again[1].Content)
		assert.Equal(t, firstClean, againClean)
	}
}

func TestInferLanguage(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"<!DOCTYPE html><p>x</p>", "html"},
		{"<html><body></body></html>", "html"},
		{"import React from 'react'\nexport default () => <div/>", "jsx"},
		{"import { useState } from \"react\"", "jsx"},
		{"def main():\n    pass", "python"},
		{"import os", "python"},
		{"print(1)", "python"},
		{"console.log(1)", "javascript"},
		{"", "javascript"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InferLanguage(tt.content), "content %q", tt.content)
	}
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func TestExtractEdits_Object(t *testing.T) {
	ex := newTestExtractor()
	text := "Updated.\n<edit_artifact>\n{\"target\":\"Lease\",\"replacements\":[{\"oldText\":\"30 days\",\"newText\":\"60 days\"}]}\n</edit_artifact>"

	edits, clean := ex.ExtractEdits(text)

	require.Len(t, edits, 1)
	assert.Equal(t, model.ArtifactEdit{
		Target:       "Lease",
		Replacements: []model.Replacement{{OldText: "30 days", NewText: "60 days"}},
	}, edits[0])
	assert.Equal(t, "Updated.", clean)
}

func TestExtractEdits_ArrayFiltersInvalid(t *testing.T) {
	ex := newTestExtractor()
	text := `<edit_artifact>[
		{"target":"A","replacements":[{"oldText":"a","newText":"b"},{"oldText":"","newText":"z"}]},
		{"target":"","replacements":[{"oldText":"a","newText":"b"}]},
		{"target":"B","replacements":[]}
	]</edit_artifact>`

	edits, clean := ex.ExtractEdits(text)

	require.Len(t, edits, 1)
	assert.Equal(t, "A", edits[0].Target)
	assert.Equal(t, []model.Replacement{{OldText: "a", NewText: "b"}}, edits[0].Replacements)
	assert.Empty(t, clean)
}

func TestExtractEdits_FirstBlockOnly(t *testing.T) {
	ex := newTestExtractor()
	second := `<edit_artifact>{"target":"B","replacements":[{"oldText":"b","newText":"c"}]}</edit_artifact>`
	text := `<edit_artifact>{"target":"A","replacements":[{"oldText":"a","newText":"b"}]}</edit_artifact> ` + second

	edits, clean := ex.ExtractEdits(text)

	require.Len(t, edits, 1)
	assert.Equal(t, "A", edits[0].Target)
	assert.Equal(t, second, clean)
}

func TestExtractEdits_MalformedKeepsText(t *testing.T) {
	ex := newTestExtractor()
	for _, text := range []string{
		`before <edit_artifact>{not json}</edit_artifact> after`,
		`<edit_artifact>"just a string"</edit_artifact>`,
		`<edit_artifact></edit_artifact>`,
		`<edit_artifact>{"target":"","replacements":[]}</edit_artifact>`,
	} {
		edits, clean := ex.ExtractEdits(text)
		assert.Empty(t, edits, "text %q", text)
		assert.Equal(t, text, clean)
	}
}

// =============================================================================
// CLARIFY TESTS
// =============================================================================

func TestExtractClarify(t *testing.T) {
	ex := newTestExtractor()
	text := `Before I draft this:
<clarify>[
  {"id":"state","question":"Which state?","options":["CA","NY"]},
  {"question":"Monthly rent?","placeholder":"e.g. 2000"},
  {"question":"   "},
  {"question":"Landlord name?","type":"TEXT","options":[{"label":"Unknown"}]}
]</clarify>`

	questions, clean := ex.ExtractClarify(text)

	require.Len(t, questions, 3)
	assert.Equal(t, model.ClarifyQuestion{
		ID: "state", Question: "Which state?", Options: []string{"CA", "NY"}, Type: model.QuestionSelect,
	}, questions[0])
	assert.Equal(t, model.ClarifyQuestion{
		ID: "q2", Question: "Monthly rent?", Type: model.QuestionText, Placeholder: "e.g. 2000",
	}, questions[1])
	assert.Equal(t, "q4", questions[2].ID)
	assert.Equal(t, model.QuestionText, questions[2].Type)
	assert.Equal(t, []string{"Unknown"}, questions[2].Options)

	assert.Equal(t, "Before I draft this:", clean)
}

func TestExtractClarify_Malformed(t *testing.T) {
	ex := newTestExtractor()
	for _, text := range []string{
		`<clarify>{"question":"object not array"}</clarify>`,
		`<clarify>[{"question":</clarify>`,
		`no block at all`,
	} {
		questions, clean := ex.ExtractClarify(text)
		assert.Empty(t, questions)
		assert.Equal(t, text, clean)
	}
}

// =============================================================================
// LEGAL REFERENCE TESTS
// =============================================================================

func TestExtractLegalReferences(t *testing.T) {
	text := "See [Art. 1101](civil://cc/1101) and [§ 2](Penal://pc/2-bis), not [docs](https://example.com/x)."

	refs := ExtractLegalReferences(text)

	require.Len(t, refs, 2)
	assert.Equal(t, LegalReference{
		Label: "Art. 1101", Scheme: "civil", Code: "cc", Number: "1101",
		Start: 4, End: 4 + len("[Art. 1101](civil://cc/1101)"),
	}, refs[0])
	assert.Equal(t, "§ 2", refs[1].Label)
	assert.Equal(t, "penal", refs[1].Scheme)
	assert.Equal(t, "2-bis", refs[1].Number)
	assert.Equal(t, "[§ 2](Penal://pc/2-bis)", text[refs[1].Start:refs[1].End])

	assert.True(t, HasLegalReferences(text))
}

func TestExtractLegalReferences_SkipsTagSpans(t *testing.T) {
	text := `<artifact type="Analysis" title="Memo">Cites [Art. 5](civil://cc/5).</artifact> Also [Art. 6](civil://cc/6).`

	refs := ExtractLegalReferences(text)

	require.Len(t, refs, 1)
	assert.Equal(t, "Art. 6", refs[0].Label)
}

func TestHasLegalReferences_None(t *testing.T) {
	assert.False(t, HasLegalReferences(""))
	assert.False(t, HasLegalReferences("plain text"))
	assert.False(t, HasLegalReferences("[site](https://example.com/page)"))
	assert.False(t, HasLegalReferences("[broken](civil://cc)"))
}
