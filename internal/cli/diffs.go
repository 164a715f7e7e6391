// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// diffs.go - Diffs of artifacts rewritten by edit directives.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/lexstream/internal/accumulator"
	"github.com/jeranaias/lexstream/internal/diff"
	"github.com/jeranaias/lexstream/internal/model"
)

// artifactDiff is the change one turn made to one artifact.
type artifactDiff struct {
	Title   string     `json:"title"`
	Stats   diff.Stats `json:"stats"`
	Unified string     `json:"unified"`
}

// artifactContents maps every artifact id in conv to its content.
func artifactContents(conv *model.Conversation) map[string]string {
	contents := make(map[string]string)
	for _, msg := range conv.Messages {
		for _, a := range msg.Artifacts {
			contents[a.ID] = a.Content
		}
	}
	return contents
}

// artifactDiffs diffs each updated artifact against its content in before.
func artifactDiffs(before map[string]string, conv *model.Conversation, updates []accumulator.ArtifactUpdate) []artifactDiff {
	if len(updates) == 0 {
		return nil
	}
	after := artifactContents(conv)

	var diffs []artifactDiff
	for _, u := range updates {
		d := diff.Compute(before[u.ArtifactID], after[u.ArtifactID])
		if d.Empty() {
			continue
		}
		diffs = append(diffs, artifactDiff{
			Title:   u.Title,
			Stats:   d.Stats,
			Unified: d.Unified(u.Title+" (before)", u.Title+" (after)"),
		})
	}
	return diffs
}

// writeDiffs prints unified diffs with added and removed lines colored.
func writeDiffs(w io.Writer, diffs []artifactDiff) {
	for _, d := range diffs {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", HighlightStyle.Render(d.Title), DimStyle.Render(fmt.Sprintf("+%d -%d", d.Stats.Added, d.Stats.Removed)))
		for _, line := range strings.Split(strings.TrimSuffix(d.Unified, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@@"):
				fmt.Fprintln(w, DimStyle.Render(line))
			case strings.HasPrefix(line, "+"):
				fmt.Fprintln(w, SuccessStyle.Render(line))
			case strings.HasPrefix(line, "-"):
				fmt.Fprintln(w, ErrorStyle.Render(line))
			default:
				fmt.Fprintln(w, line)
			}
		}
	}
}
