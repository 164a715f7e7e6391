// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the lexstream command-line interface.
//
// Commands are built on urfave/cli. Global flags are resolved once into an
// Env (configuration, logger, metrics, writers) before any command runs.
// Errors are returned, never printed by the command itself; Run displays
// them and maps them to exit codes.
//
// # Key Types
//
//   - Env: shared command environment built from the global flags
//   - JSONResponse: envelope written by every command in --json mode
//   - TurnError: errored or failed turn, mapped to a transport exit code
//   - ChatCLI: line editing and input history for interactive chat
//
// # Usage
//
//	app := cli.NewApp()
//	os.Exit(cli.Run(ctx, app, os.Args))
//
// # Commands Overview
//
//   - chat: send a message or start an interactive chat
//   - replay: run a recorded NDJSON response through the pipeline, or print its events
//   - history: list, show, search, export, delete and clear conversations
//   - config: show, get and set configuration values
//   - usage: summarize recorded turns
//
// All commands support --json for scripting.
package cli
