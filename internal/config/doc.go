// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lexstream.
//
// Configuration file locations (first found wins):
//   - ~/.lexstream/config.toml
//   - ~/.lexstream/config.json
//   - ~/.lexstream/config.yaml (or .yml)
//   - Built-in defaults
//
// Environment variables override file values; see ApplyEnvOverrides.
//
// # Key Types
//
//   - Config: root configuration with server, stream, storage, log and metrics sections
//   - ValidateErrors: every problem found by Validate
//
// # Usage
//
//	cfg, err := config.Load()
//	cfg, err := config.LoadFromPath("/etc/lexstream.yaml")
//
//	go config.Watch(ctx, path, 0, func(c *config.Config) { apply(c) }, nil)
//
// # Example Configuration (TOML)
//
//	[server]
//	base_url = "https://chat.example.com"
//	api_token = "..."
//	connect_timeout_secs = 10
//
//	[storage]
//	backend = "sqlite"
//	max_conversations = 200
//
//	[log]
//	level = "debug"
//	format = "json"
package config
