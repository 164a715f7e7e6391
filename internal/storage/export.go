// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/util"
)

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as Markdown: a header, then each
// message under its role label with its artifacts as fenced blocks.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.GetTitle() + "\n\n")
	sb.WriteString("Conversation: " + conv.ID + "\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")

		switch {
		case msg.IsError:
			sb.WriteString("> Error: " + msg.ErrorMessage + "\n\n")
		case msg.IsStreaming:
			sb.WriteString("> (incomplete)\n\n")
		}
		if msg.Content != "" {
			sb.WriteString(msg.Content + "\n\n")
		}

		for _, a := range msg.Artifacts {
			sb.WriteString("### " + a.Title + " (" + string(a.Type) + ")\n\n")
			sb.WriteString(fence(a.Content) + a.Language + "\n")
			sb.WriteString(a.Content)
			if !strings.HasSuffix(a.Content, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString(fence(a.Content) + "\n\n")
		}
		if len(msg.ToolsUsed) > 0 {
			sb.WriteString("_Tools: " + strings.Join(msg.ToolsUsed, ", ") + "_\n\n")
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

// fence returns a backtick fence longer than any run inside content.
func fence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// ExportJSON returns the conversation as pretty-printed JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	return json.MarshalIndent(conv, "", "  ")
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// Column widths of FormatList. The id column grows to fit the longest id.
const (
	idWidth      = 14
	updatedWidth = 16
	countWidth   = 5
	titleWidth   = 32
)

// FormatList renders conversation metadata as a table padded by display
// width, so wide characters keep the columns aligned.
func FormatList(metas []ConversationMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	ids := idWidth
	for _, m := range metas {
		ids = max(ids, util.StringWidth(m.ID))
	}
	rule := strings.Repeat("-", ids+updatedWidth+countWidth*2+titleWidth+4) + "\n"

	var sb strings.Builder
	sb.WriteString(rule)
	sb.WriteString(row(ids, "ID", "Updated", "Msgs", "Arts", "Title"))
	sb.WriteString(rule)
	for _, m := range metas {
		sb.WriteString(row(ids,
			m.ID,
			m.UpdatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(m.MessageCount),
			strconv.Itoa(m.ArtifactCount),
			util.SingleLine(m.Title),
		))
	}
	return sb.String()
}

func row(ids int, id, updated, msgs, arts, title string) string {
	return util.PadRight(id, ids) + " " +
		util.PadRight(updated, updatedWidth) + " " +
		util.PadRight(msgs, countWidth) + " " +
		util.PadRight(arts, countWidth) + " " +
		strings.TrimRight(util.PadRight(title, titleWidth), " ") + "\n"
}
