// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP transport for streaming chat requests.
//
// A request carries the prior conversation, attachments and feature flags.
// The response body is newline-delimited JSON and is returned unread so the
// stream package can decode it incrementally.
//
// # Key Types
//
//   - Client: posts a ChatRequest and returns the response body
//   - FileTransport: replays a recorded response body from disk
//   - ClientError: typed transport failure (network, timeout, server, canceled)
//
// # Usage
//
//	c := client.NewClient(&client.Config{BaseURL: "https://chat.example.com"})
//	body, err := c.ChatStream(ctx, client.ChatRequest{Messages: msgs})
//	if err != nil {
//	    fmt.Println(client.UserMessage(err))
//	}
//	defer body.Close()
package client
