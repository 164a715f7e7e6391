// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for lexstream.
//
// Conversations are stored whole, as the JSON map form the model package
// produces with Conversation.ToMap and reads back with ConversationFromMap. Two backends implement Store: JSONStore writes one file
// per conversation and SQLiteStore keeps them in a single database with
// listing columns alongside the document.
//
// # Key Types
//
//   - Store: backend interface (Save, Load, List, Delete, Clear, Close)
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.Open(cfg.Storage)
//	defer store.Close()
//	err = store.Save(conv)
//	metas, err := store.List()
//	fmt.Println(storage.FormatList(metas))
//
// # Storage Location
//
// By default conversations live in ~/.lexstream/conversations/, as *.json
// files or conversations.db depending on the backend.
package storage
