// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the storage and CLI layers.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//
// Display Width:
//   - StringWidth, TruncateWidth, PadRight: column-aware text layout
//   - SingleLine: whitespace collapsing for one-line previews
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	cell := util.PadRight(conv.Title, 32)
package util
