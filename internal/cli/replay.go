// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// replay.go - The replay command.
//
// Command: replay
// Short:   Run a recorded NDJSON response through the pipeline
//
// Examples:
//   lexstream replay turn.ndjson
//   lexstream replay --chunk 7 --delay 20ms turn.ndjson
//   lexstream --json replay --prompt "Draft a lease" turn.ndjson
//   lexstream replay --conversation 3f2a... --save edit.ndjson
//   lexstream replay --events turn.ndjson

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/stream"
)

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Run a recorded NDJSON response through the pipeline",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "User message recorded for the turn (default: \"Replay of FILE\")",
			},
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Replay into the stored conversation with this id",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Store the resulting conversation",
			},
			&cli.IntFlag{
				Name:  "chunk",
				Usage: "Split the recording into reads of at most this many bytes",
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause before every read",
			},
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Print content as it streams",
			},
			&cli.BoolFlag{
				Name:  "reasoning",
				Usage: "Show reasoning while it streams (with --live)",
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "Show a diff of every document the turn edited",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Print the decoded events instead of running the turn",
			},
		},
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	env := envFrom(c)

	if c.NArg() != 1 {
		return NewValidationErrorWithExample("arguments", "", "expected exactly one recording", "lexstream replay turn.ndjson")
	}
	path := c.Args().First()
	if _, err := os.Stat(path); err != nil {
		return NewValidationError("recording", path, "file not found")
	}
	if c.Int("chunk") < 0 {
		return NewValidationError("chunk", fmt.Sprint(c.Int("chunk")), "must not be negative")
	}

	transport := &client.FileTransport{
		Path:      path,
		ChunkSize: c.Int("chunk"),
		Delay:     c.Duration("delay"),
	}
	if c.Bool("events") {
		return replayEvents(c.Context, env, transport)
	}

	opts := sessionOptions{
		Transport: transport,
		Live:      c.Bool("live"),
		Reasoning: c.Bool("reasoning"),
		Quiet:     true,
		Diff:      c.Bool("diff"),
	}

	id := c.String("conversation")
	if id != "" || c.Bool("save") {
		store, err := env.OpenStore()
		if err != nil {
			return NewCommandError("replay", "open", "conversation store unavailable", err)
		}
		defer store.Close()

		if id != "" {
			conv, err := store.Load(id)
			if err != nil {
				return notFound(id, err)
			}
			opts.Conversation = conv
		}
		if c.Bool("save") {
			opts.Store = store
		}
	}

	prompt := c.String("prompt")
	if prompt == "" {
		prompt = "Replay of " + path
	}

	sess := newSession(env, opts)
	defer sess.Close()

	res, turnErr := sess.Send(c.Context, prompt)
	if turnErr != nil && res.TurnID == "" {
		return turnErr
	}
	if !env.JSON && turnErr == nil {
		writeTurnSummary(env, res)
	}
	return report(env, "replay", res, turnErr)
}

// writeTurnSummary prints the outcome line of a replayed turn.
func writeTurnSummary(env *Env, res turnResult) {
	fmt.Fprintf(env.Stderr, "%s %s in %s, %d new, %d updated",
		RenderStatus(res.Outcome), res.Outcome, formatDurationShort(res.Duration),
		len(res.NewArtifacts), len(res.UpdatedArtifacts))
	if res.Context.TotalTokens > 0 {
		fmt.Fprintf(env.Stderr, ", %d tokens (%d%%)", res.Context.TotalTokens, res.Context.UsagePercent)
	}
	fmt.Fprintln(env.Stderr)
}

// =============================================================================
// EVENT DUMP
// =============================================================================

// eventRecord is one decoded event in JSON output.
type eventRecord struct {
	Kind  string       `json:"kind"`
	Event stream.Event `json:"event"`
}

// replayEvents prints every event the recording decodes to. Malformed and
// unknown lines are skipped the same way a live turn skips them.
func replayEvents(ctx context.Context, env *Env, transport *client.FileTransport) error {
	body, err := transport.ChatStream(ctx, client.ChatRequest{})
	if err != nil {
		return NewCommandError("replay", "open", "cannot open recording", err)
	}
	defer body.Close()

	records := make([]eventRecord, 0)
	for item := range stream.Events(ctx, body) {
		if item.Err != nil {
			return NewCommandError("replay", "read", "recording could not be read", item.Err)
		}
		records = append(records, eventRecord{Kind: item.Event.Kind().String(), Event: item.Event})
	}

	return env.Output("replay", records, func(w io.Writer) error {
		for _, r := range records {
			var d eventDescriber
			r.Event.Accept(&d)
			if _, err := fmt.Fprintf(w, "%s%s\n", RenderLabel(r.Kind, 11), d.text); err != nil {
				return err
			}
		}
		return nil
	})
}

// eventDescriber renders an event's payload on one line.
type eventDescriber struct {
	text string
}

func (d *eventDescriber) OnContent(e stream.ContentEvent)     { d.text = strconv.Quote(e.Text) }
func (d *eventDescriber) OnReasoning(e stream.ReasoningEvent) { d.text = strconv.Quote(e.Text) }
func (d *eventDescriber) OnPlan(e stream.PlanEvent)           { d.text = strconv.Quote(e.Text) }
func (d *eventDescriber) OnStatus(e stream.StatusEvent)       { d.text = e.Status }
func (d *eventDescriber) OnError(e stream.ErrorEvent)         { d.text = e.Message }

func (d *eventDescriber) OnContext(e stream.ContextEvent) {
	d.text = fmt.Sprintf("%d%% of %d tokens (%d used)", e.UsagePercent, e.ContextWindowSize, e.TotalTokens)
	if e.Compacting {
		d.text += ", compacting"
	}
}
