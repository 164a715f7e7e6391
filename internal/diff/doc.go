// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line diffs between two revisions of an artifact.
//
// Edit directives rewrite artifacts in place; this package shows what a turn
// changed. Lines are aligned on their longest common subsequence and grouped
// into hunks with a few lines of context.
//
// # Key Types
//
//   - Op: Equal, Delete or Insert
//   - Line: One diff line with its op
//   - Hunk: Changes with surrounding context and unified-format ranges
//   - Diff: All lines, the hunks and the change counts
//
// # Usage
//
//	d := diff.Compute(before, after)
//	if !d.Empty() {
//		fmt.Print(d.Unified("Lease (before)", "Lease (after)"))
//	}
package diff
