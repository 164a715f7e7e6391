// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// ARTIFACT TYPE
// =============================================================================

// ArtifactType classifies an artifact extracted from assistant text.
type ArtifactType string

const (
	ArtifactContract  ArtifactType = "Contract"
	ArtifactClaim     ArtifactType = "Claim"
	ArtifactComplaint ArtifactType = "Complaint"
	ArtifactDocument  ArtifactType = "Document"
	ArtifactCode      ArtifactType = "Code"
	ArtifactAnalysis  ArtifactType = "Analysis"
	ArtifactImage     ArtifactType = "Image"
)

var artifactTypes = []ArtifactType{
	ArtifactContract,
	ArtifactClaim,
	ArtifactComplaint,
	ArtifactDocument,
	ArtifactCode,
	ArtifactAnalysis,
	ArtifactImage,
}

// ParseArtifactType maps a tag attribute to an ArtifactType.
// Matching ignores case; anything unrecognized is a Document.
func ParseArtifactType(s string) ArtifactType {
	s = strings.TrimSpace(s)
	for _, t := range artifactTypes {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return ArtifactDocument
}

// =============================================================================
// ARTIFACT
// =============================================================================

// DefaultArtifactTitle labels artifacts whose tag carried no title.
const DefaultArtifactTitle = "Document"

// Artifact is a structured document or code block rendered apart from the chat bubble.
// Title is the identity key within a conversation, compared with NormalizeTitle.
type Artifact struct {
	ID       string       `json:"id"`
	Type     ArtifactType `json:"type"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Language string       `json:"language,omitempty"` // Code only
}

// Key returns the normalized title used for deduplication.
func (a Artifact) Key() string {
	return NormalizeTitle(a.Title)
}

// =============================================================================
// EDIT DIRECTIVES
// =============================================================================

// Replacement is one literal search/replace pair.
type Replacement struct {
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
}

// ArtifactEdit targets an existing artifact by title and rewrites its content.
type ArtifactEdit struct {
	Target       string        `json:"target"`
	Replacements []Replacement `json:"replacements"`
}

// Apply runs every replacement in order against content using replace-all.
// Empty search strings are skipped. The second result reports whether the
// content changed.
func (e ArtifactEdit) Apply(content string) (string, bool) {
	out := content
	for _, r := range e.Replacements {
		if r.OldText == "" {
			continue
		}
		out = strings.ReplaceAll(out, r.OldText, r.NewText)
	}
	return out, out != content
}

// Clone returns a copy that shares no slices with e.
func (e ArtifactEdit) Clone() ArtifactEdit {
	return ArtifactEdit{
		Target:       e.Target,
		Replacements: append([]Replacement(nil), e.Replacements...),
	}
}

// =============================================================================
// CLARIFICATION QUESTIONS
// =============================================================================

// Question input kinds.
const (
	QuestionSelect = "select"
	QuestionText   = "text"
)

// ClarifyQuestion is a follow-up question the assistant asks before answering.
type ClarifyQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Type        string   `json:"type"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// =============================================================================
// TITLE NORMALIZATION
// =============================================================================

// NormalizeTitle returns the comparison key for artifact titles: surrounding
// space removed, NFC composed and case folded.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	t = norm.NFC.String(t)
	return cases.Fold().String(t)
}
