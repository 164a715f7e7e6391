// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package accumulator

import (
	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/model"
)

// =============================================================================
// FINISH RESULT
// =============================================================================

// ArtifactUpdate identifies an artifact in an earlier message whose content was
// replaced by a newer artifact with the same title.
type ArtifactUpdate struct {
	MessageID  string
	ArtifactID string
	Title      string
}

// FinishResult summarizes the reconciliation performed by FinishStreaming.
type FinishResult struct {
	MessageID        string
	NewArtifacts     []model.Artifact
	UpdatedArtifacts []ArtifactUpdate
	AppliedEdits     []model.ArtifactEdit
	SkippedEdits     []model.ArtifactEdit
}

// location addresses one artifact inside the conversation.
type location struct {
	msg int
	art int
}

// =============================================================================
// FINISH STREAMING
// =============================================================================

// FinishStreaming completes the in-flight assistant message:
//
//  1. artifact blocks are extracted from the accumulated content
//  2. edit blocks are extracted from the artifact-free text
//  3. both kinds of block are removed from the displayed content
//  4. each artifact whose title already exists in an earlier message replaces
//     that artifact's content in place and is not added again
//  5. each edit is applied to the first artifact with a matching title across
//     all messages, this one included
//  6. the message leaves the streaming state
//
// Step 4 deliberately mutates messages that already finished: a later turn
// revising a document must update it where it was first shown. Title lookups
// use an index built once per call.
//
// The second result is false when no message was streaming.
func (a *Accumulator) FinishStreaming() (FinishResult, bool) {
	msg := a.Streaming()
	if msg == nil {
		return FinishResult{}, false
	}
	current := len(a.conv.Messages) - 1
	result := FinishResult{MessageID: msg.ID}

	extracted, clean := a.extractor.ExtractArtifacts(msg.Content)
	edits, clean := a.extractor.ExtractEdits(clean)

	recorded := append([]model.Artifact(nil), msg.Artifacts...)
	candidates := collapseByTitle(append(recorded, extracted...))
	index := a.titleIndex(current)

	fresh := make([]model.Artifact, 0, len(candidates))
	for _, candidate := range candidates {
		key := candidate.Key()
		loc, ok := index[key]
		if !ok {
			fresh = append(fresh, candidate)
			continue
		}

		owner := a.conv.Messages[loc.msg]
		existing := &owner.Artifacts[loc.art]
		if existing.Content == candidate.Content {
			continue
		}
		existing.Content = candidate.Content
		result.UpdatedArtifacts = append(result.UpdatedArtifacts, ArtifactUpdate{
			MessageID:  owner.ID,
			ArtifactID: existing.ID,
			Title:      existing.Title,
		})
		a.logger.Debug("updated earlier artifact",
			zap.String("title", existing.Title),
			zap.String("message_id", owner.ID),
		)
	}

	// New artifacts are edit targets too.
	msg.Artifacts = fresh
	for i := range fresh {
		index[fresh[i].Key()] = location{msg: current, art: i}
	}

	var applied []model.ArtifactEdit
	for _, edit := range edits {
		if a.applyEdit(edit, index) {
			applied = append(applied, edit.Clone())
		} else {
			result.SkippedEdits = append(result.SkippedEdits, edit.Clone())
		}
	}

	msg.Content = clean
	msg.AppliedEdits = applied
	msg.IsStreaming = false
	a.conv.Touch()

	result.NewArtifacts = append([]model.Artifact(nil), fresh...)
	result.AppliedEdits = append([]model.ArtifactEdit(nil), applied...)

	a.logger.Info("turn finished",
		zap.String("message_id", msg.ID),
		zap.Int("new_artifacts", len(result.NewArtifacts)),
		zap.Int("updated_artifacts", len(result.UpdatedArtifacts)),
		zap.Int("applied_edits", len(result.AppliedEdits)),
		zap.Int("skipped_edits", len(result.SkippedEdits)),
	)
	return result, true
}

// applyEdit rewrites the first artifact titled edit.Target. It reports true
// only when the content changed.
func (a *Accumulator) applyEdit(edit model.ArtifactEdit, index map[string]location) bool {
	loc, ok := index[model.NormalizeTitle(edit.Target)]
	if !ok {
		a.logger.Debug("edit target not found", zap.String("target", edit.Target))
		return false
	}

	artifact := &a.conv.Messages[loc.msg].Artifacts[loc.art]
	updated, changed := edit.Apply(artifact.Content)
	if !changed {
		a.logger.Debug("edit changed nothing", zap.String("target", edit.Target))
		return false
	}
	artifact.Content = updated
	return true
}

// titleIndex maps normalized titles to the first artifact carrying them in
// messages[0:end], in conversation order.
func (a *Accumulator) titleIndex(end int) map[string]location {
	index := make(map[string]location)
	for mi := 0; mi < end; mi++ {
		for ai := range a.conv.Messages[mi].Artifacts {
			key := a.conv.Messages[mi].Artifacts[ai].Key()
			if _, seen := index[key]; !seen {
				index[key] = location{msg: mi, art: ai}
			}
		}
	}
	return index
}

// collapseByTitle merges artifacts sharing a title. The first one keeps its
// position and id; the last one supplies the content.
func collapseByTitle(artifacts []model.Artifact) []model.Artifact {
	out := make([]model.Artifact, 0, len(artifacts))
	pos := make(map[string]int, len(artifacts))
	for _, artifact := range artifacts {
		key := artifact.Key()
		if i, ok := pos[key]; ok {
			out[i].Content = artifact.Content
			if artifact.Language != "" {
				out[i].Language = artifact.Language
			}
			continue
		}
		pos[key] = len(out)
		out = append(out, artifact)
	}
	return out
}
