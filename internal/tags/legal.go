// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tags

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// =============================================================================
// LEGAL REFERENCES
// =============================================================================

// [label](scheme://code/number)
var legalPattern = mustCompile(
	`\[([^\[\]\r\n]+)\]\(([A-Za-z][A-Za-z0-9+.-]*)://([^/\s()]+)/([^\s()]+)\)`,
	regexp2.None,
)

// Link schemes that are ordinary web links rather than citations.
var webSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"ftp":    true,
	"mailto": true,
}

// LegalReference is an inline citation such as [Art. 1101](civil://cc/1101).
// Start and End are byte offsets of the whole link in the scanned text.
type LegalReference struct {
	Label  string
	Scheme string
	Code   string
	Number string
	Start  int
	End    int
}

// HasLegalReferences reports whether text contains at least one citation.
func HasLegalReferences(text string) bool {
	return len(ExtractLegalReferences(text)) > 0
}

// ExtractLegalReferences returns every citation in text in order. Links that
// sit inside an artifact, edit or clarification block belong to that block and
// are skipped.
func ExtractLegalReferences(text string) []LegalReference {
	if !strings.Contains(text, "](") {
		return nil
	}

	var blocks []span
	for _, p := range []blockPattern{artifactPattern, editPattern, clarifyPattern} {
		blocks = append(blocks, p.find(text, 0)...)
	}

	var refs []LegalReference
	for _, s := range findSpans(legalPattern, text) {
		scheme := strings.ToLower(s.groups[2])
		if webSchemes[scheme] || inside(s.start, blocks) {
			continue
		}
		refs = append(refs, LegalReference{
			Label:  strings.TrimSpace(s.groups[1]),
			Scheme: scheme,
			Code:   s.groups[3],
			Number: s.groups[4],
			Start:  s.start,
			End:    s.end,
		})
	}
	return refs
}
