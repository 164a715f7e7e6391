// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - The history command.
//
// Command: history
// Short:   Browse stored conversations
//
// Examples:
//   lexstream history list --limit 20
//   lexstream history show 3f2a...
//   lexstream history search lease
//   lexstream history export 3f2a... --format json --output lease.json
//   lexstream history delete 3f2a...
//   lexstream history clear --force

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/storage"
	"github.com/jeranaias/lexstream/internal/util"
)

// HistoryCommand returns the history command with subcommands.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"conversations"},
		Usage:   "Browse stored conversations",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List conversations, most recent first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of conversations to list (0 = no limit)",
					},
				},
				Action: historyListAction,
			},
			{
				Name:      "show",
				Usage:     "Show a conversation",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "raw",
						Usage: "Print the Markdown without rendering it",
					},
				},
				Action: historyShowAction,
			},
			{
				Name:      "search",
				Usage:     "Find conversations whose title or first message contains a query",
				ArgsUsage: "QUERY",
				Action:    historySearchAction,
			},
			{
				Name:      "export",
				Usage:     "Export a conversation as Markdown or JSON",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format: md, json",
						Value: "md",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
				},
				Action: historyExportAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete a conversation",
				ArgsUsage: "ID",
				Action:    historyDeleteAction,
			},
			{
				Name:  "clear",
				Usage: "Delete every stored conversation",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Confirm deleting all conversations",
					},
				},
				Action: historyClearAction,
			},
		},
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(env *Env, fn func(storage.Store) error) error {
	store, err := env.OpenStore()
	if err != nil {
		return NewCommandError("history", "open", "conversation store unavailable", err)
	}
	defer store.Close()
	return fn(store)
}

// idArg returns the single ID argument of a history subcommand.
func idArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", NewValidationErrorWithExample("arguments", strings.Join(c.Args().Slice(), " "),
			"expected one conversation id", "lexstream history "+c.Command.Name+" <id>")
	}
	return c.Args().First(), nil
}

func historyListAction(c *cli.Context) error {
	env := envFrom(c)
	limit := c.Int("limit")
	if limit < 0 {
		return NewValidationError("limit", fmt.Sprint(limit), "must not be negative")
	}

	return withStore(env, func(store storage.Store) error {
		metas, err := store.List()
		if err != nil {
			return err
		}
		if limit > 0 && len(metas) > limit {
			metas = metas[:limit]
		}
		return env.Output("history list", metas, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, strings.TrimRight(storage.FormatList(metas), "\n"))
			return err
		})
	})
}

func historySearchAction(c *cli.Context) error {
	env := envFrom(c)
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return NewValidationErrorWithExample("query", "", "must not be empty", "lexstream history search lease")
	}

	return withStore(env, func(store storage.Store) error {
		metas, err := storage.Search(store, query)
		if err != nil {
			return err
		}
		return env.Output("history search", metas, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, strings.TrimRight(storage.FormatList(metas), "\n"))
			return err
		})
	})
}

func historyShowAction(c *cli.Context) error {
	env := envFrom(c)
	id, err := idArg(c)
	if err != nil {
		return err
	}

	return withStore(env, func(store storage.Store) error {
		conv, err := store.Load(id)
		if err != nil {
			return notFound(id, err)
		}
		return env.Output("history show", conv, func(w io.Writer) error {
			md := storage.ExportMarkdown(conv)
			if !c.Bool("raw") {
				md = renderMarkdown(md)
			}
			_, err := io.WriteString(w, md)
			return err
		})
	})
}

func historyExportAction(c *cli.Context) error {
	env := envFrom(c)
	id, err := idArg(c)
	if err != nil {
		return err
	}

	format := strings.ToLower(c.String("format"))
	if format != "md" && format != "markdown" && format != "json" {
		return NewValidationErrorWithExample("format", format, "must be md or json", "--format json")
	}

	return withStore(env, func(store storage.Store) error {
		conv, err := store.Load(id)
		if err != nil {
			return notFound(id, err)
		}
		data, err := exportConversation(conv, format)
		if err != nil {
			return err
		}

		output := c.String("output")
		if output == "" {
			_, err := env.Stdout.Write(data)
			return err
		}
		if err := util.AtomicWriteFile(output, data, 0600); err != nil {
			return NewCommandError("history", "export", "cannot write "+output, err)
		}
		fmt.Fprintln(env.Stderr, SuccessStyle.Render("Exported")+" "+id+" to "+output)
		return nil
	})
}

func exportConversation(conv *model.Conversation, format string) ([]byte, error) {
	if format == "json" {
		data, err := storage.ExportJSON(conv)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return []byte(storage.ExportMarkdown(conv)), nil
}

func historyDeleteAction(c *cli.Context) error {
	env := envFrom(c)
	id, err := idArg(c)
	if err != nil {
		return err
	}

	return withStore(env, func(store storage.Store) error {
		if err := store.Delete(id); err != nil {
			return notFound(id, err)
		}
		return env.Output("history delete", map[string]string{"deleted": id}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, SuccessStyle.Render("Deleted")+" "+id)
			return err
		})
	})
}

func historyClearAction(c *cli.Context) error {
	env := envFrom(c)
	if !c.Bool("force") {
		return NewValidationErrorWithExample("force", "false",
			"clearing deletes every conversation", "lexstream history clear --force")
	}

	return withStore(env, func(store storage.Store) error {
		metas, err := store.List()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return NewCommandError("history", "clear", "cannot clear conversations", err)
		}
		return env.Output("history clear", map[string]int{"deleted": len(metas)}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s %d conversation(s)\n", SuccessStyle.Render("Deleted"), len(metas))
			return err
		})
	})
}
