// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"html"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/jeranaias/lexstream/internal/model"
)

// =============================================================================
// PATTERNS
// =============================================================================

var (
	// <artifact type="..." title="...">content</artifact>. Attribute values
	// must be quoted and may contain '>'.
	artifactPattern = newBlockPattern(
		`<artifact((?:\s+[A-Za-z_][\w-]*\s*=\s*(?:"[^"]*"|'[^']*'))*)\s*>`,
		`</artifact\s*>`,
	)

	// name="value" or name='value'; the closing quote must match the opening one.
	attrPattern = mustCompile(
		`([A-Za-z_][\w-]*)\s*=\s*(["'])(.*?)\2`,
		regexp2.Singleline,
	)
)

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor mines structured blocks out of assistant text.
// Artifact ids come from the injected generator in match order.
type Extractor struct {
	ids model.IDGenerator
}

// New creates an extractor. A nil generator yields "artifact-1", "artifact-2", ...
func New(ids model.IDGenerator) *Extractor {
	if ids == nil {
		ids = model.NewSequenceGenerator("artifact")
	}
	return &Extractor{ids: ids}
}

// ExtractArtifacts returns every artifact block in text and the text with the
// blocks removed and trimmed. When nothing matches, text is returned as is.
func (e *Extractor) ExtractArtifacts(text string) ([]model.Artifact, string) {
	spans := artifactPattern.find(text, 0)
	if len(spans) == 0 {
		return nil, text
	}

	artifacts := make([]model.Artifact, 0, len(spans))
	for _, s := range spans {
		attrs := parseAttributes(s.groups[1])

		artifact := model.Artifact{
			ID:      e.ids.Next(),
			Type:    model.ParseArtifactType(attrs["type"]),
			Title:   strings.TrimSpace(attrs["title"]),
			Content: strings.TrimSpace(s.groups[2]),
		}
		if artifact.Title == "" {
			artifact.Title = model.DefaultArtifactTitle
		}
		if artifact.Type == model.ArtifactCode {
			artifact.Language = InferLanguage(artifact.Content)
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, strings.TrimSpace(removeSpans(text, spans))
}

// parseAttributes reads the attribute list of an opening tag. Keys are lower
// cased; the first occurrence of a key wins.
func parseAttributes(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, s := range findSpans(attrPattern, raw) {
		key := strings.ToLower(s.groups[1])
		if _, seen := attrs[key]; seen {
			continue
		}
		attrs[key] = html.UnescapeString(s.groups[3])
	}
	return attrs
}

// =============================================================================
// LANGUAGE INFERENCE
// =============================================================================

var reactMarkers = []string{
	`from 'react'`,
	`from "react"`,
	`require('react')`,
	`require("react")`,
	"import React",
}

var pythonMarkers = []string{
	"def ",
	"import ",
	"print(",
}

// InferLanguage guesses the language of a Code artifact from content markers.
// Checks run in order: html, jsx, python, then javascript as the fallback.
func InferLanguage(content string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "<!doctype html") || strings.Contains(lower, "<html") {
		return "html"
	}
	if containsAny(content, reactMarkers) {
		return "jsx"
	}
	if containsAny(content, pythonMarkers) {
		return "python"
	}
	return "javascript"
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
