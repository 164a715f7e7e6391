// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - The chat command.
//
// Command: chat
// Short:   Send a message, or start an interactive chat without one
//
// Examples:
//   lexstream chat "Draft a residential lease for Paris"
//   lexstream chat --conversation 3f2a... "Raise the rent to 1200"
//   lexstream chat --web-search --deep-thinking
//   lexstream chat --attach contract.pdf "Summarize this contract"
//   echo "What notice period applies?" | lexstream chat
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new                Start a new conversation
//   /artifacts          List the documents of this conversation
//   /context            Show context window usage
//   /quit, /q           Exit chat
//   Ctrl+C              Stop the current response (keeps the partial answer)
//   Ctrl+D              Exit chat
//
// During interactive chat, edits to the config file's server settings and
// notify_fps apply from the next message on.

package cli

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/config"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// ChatCommand returns the chat command.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Send a message, or start an interactive chat without one",
		ArgsUsage: "[MESSAGE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Continue the stored conversation with this id",
			},
			&cli.BoolFlag{
				Name:  "web-search",
				Usage: "Let the assistant search the web",
			},
			&cli.BoolFlag{
				Name:  "deep-thinking",
				Usage: "Ask for extended reasoning",
			},
			&cli.BoolFlag{
				Name:  "agent",
				Usage: "Enable agent mode",
			},
			&cli.BoolFlag{
				Name:  "reasoning",
				Usage: "Show reasoning while it streams",
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "Show a diff of every document a turn edits",
			},
			&cli.BoolFlag{
				Name:  "no-save",
				Usage: "Do not store the conversation",
			},
			&cli.StringSliceFlag{
				Name:  "attach",
				Usage: "Attach a file to the first message (repeatable)",
			},
		},
		Action: chatAction,
	}
}

func chatAction(c *cli.Context) error {
	env := envFrom(c)

	attachments, err := attachmentsFrom(c.StringSlice("attach"))
	if err != nil {
		return err
	}

	store, err := env.OpenStore()
	if err != nil {
		return NewCommandError("chat", "open", "conversation store unavailable", err)
	}
	defer store.Close()

	var conv *model.Conversation
	if id := c.String("conversation"); id != "" {
		if conv, err = store.Load(id); err != nil {
			return notFound(id, err)
		}
	}

	usage, err := telemetry.NewUsageTracker("")
	if err != nil {
		env.Logger.Warn("usage tracking disabled", zap.Error(err))
		usage = nil
	}

	opts := sessionOptions{
		Transport:    newTransport(env),
		Conversation: conv,
		Usage:        usage,
		Live:         IsStdoutTTY(),
		Reasoning:    c.Bool("reasoning"),
		Diff:         c.Bool("diff"),
		Flags: client.Flags{
			WebSearch:    c.Bool("web-search"),
			DeepThinking: c.Bool("deep-thinking"),
			Agent:        c.Bool("agent"),
		},
		Attachments: attachments,
	}
	if !c.Bool("no-save") {
		opts.Store = store
	}

	text := strings.Join(c.Args().Slice(), " ")
	interactive := text == "" && IsTerminal(env.Stdin)
	if text == "" && !interactive {
		// Piped input is a single message.
		data, err := io.ReadAll(io.LimitReader(env.Stdin, maxPipedMessage))
		if err != nil {
			return NewCommandError("chat", "read", "cannot read message from stdin", err)
		}
		if text = strings.TrimSpace(string(data)); text == "" {
			return NewValidationErrorWithExample("message", "", "no message given", `lexstream chat "What notice period applies?"`)
		}
	}
	if interactive && env.JSON {
		return NewValidationError("message", "", "interactive chat is not available with --json")
	}

	sess := newSession(env, opts)
	if !interactive {
		defer sess.Close()
		return sendOnce(c.Context, env, sess, text)
	}
	return repl(c.Context, env, sess, opts)
}

// maxPipedMessage caps a message read from stdin.
const maxPipedMessage = 1 << 20

// sendOnce runs a single turn and writes its result.
func sendOnce(ctx context.Context, env *Env, sess *session, text string) error {
	res, turnErr := sess.Send(ctx, text)
	if turnErr != nil && res.TurnID == "" {
		return turnErr
	}
	if !env.JSON && turnErr == nil && sess.store != nil {
		fmt.Fprintln(env.Stderr, DimStyle.Render("conversation "+res.ConversationID))
	}
	return report(env, "chat", res, turnErr)
}

// newTransport builds the HTTP client from the server configuration.
func newTransport(env *Env) *client.Client {
	return client.NewClient(&client.Config{
		BaseURL:        env.Config.Server.BaseURL,
		ChatPath:       env.Config.Server.ChatPath,
		APIToken:       env.Config.Server.APIToken,
		ConnectTimeout: env.Config.Server.ConnectTimeout(),
		Logger:         env.Logger,
	})
}

// attachmentsFrom describes local files as attachments.
func attachmentsFrom(paths []string) ([]model.Attachment, error) {
	attachments := make([]model.Attachment, 0, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, NewValidationError("attachment", path, err.Error())
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, NewValidationError("attachment", path, "file not found")
		}
		if info.IsDir() {
			return nil, NewValidationError("attachment", path, "is a directory")
		}
		attachments = append(attachments, model.Attachment{
			Name:     filepath.Base(abs),
			MIMEType: mime.TypeByExtension(filepath.Ext(abs)),
			URL:      "file://" + filepath.ToSlash(abs),
		})
	}
	return attachments, nil
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl reads messages until the user exits. It closes the session it ends
// with. Edits to the config file apply from the next message on.
func repl(ctx context.Context, env *Env, sess *session, opts sessionOptions) error {
	defer func() { sess.Close() }()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	live := watchConfig(watchCtx, env)

	input := NewChatCLI()
	defer input.Close()

	printWelcome(env.Stdout, sess)
	for {
		line, err := input.ReadInput(PromptStyle.Render("lexstream> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin.
			fmt.Fprintln(env.Stdout)
			return nil
		}

		line = strings.TrimSpace(line)
		if next := live.take(); next != nil {
			applyConfig(env, sess, &opts, next)
			fmt.Fprintln(env.Stderr, InfoStyle.Render("Reloaded "+env.ConfigPath))
		}

		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		case strings.HasPrefix(line, "/"):
			next, keepGoing := handleSlashCommand(env, sess, opts, line)
			if !keepGoing {
				return nil
			}
			sess = next
			continue
		}

		if _, err := sess.Send(ctx, line); err != nil {
			DisplayError(env.Stderr, "chat", err, false)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleSlashCommand runs one slash command. It returns the session to
// continue with and false when chat should end.
func handleSlashCommand(env *Env, sess *session, opts sessionOptions, line string) (*session, bool) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/q", "/exit":
		return sess, false

	case "/help", "/h":
		printHelp(env.Stdout)

	case "/new":
		sess.unsubscribe()
		opts.Conversation = nil
		opts.Attachments = nil
		// The usage session carries over to the new conversation.
		next := newSession(env, opts)
		fmt.Fprintln(env.Stdout, InfoStyle.Render("Started conversation "+next.ConversationID()))
		return next, true

	case "/artifacts":
		printArtifacts(env.Stdout, sess.ctrl.Messages())

	case "/context":
		usage := sess.ctrl.Context()
		fmt.Fprintf(env.Stdout, "%s%d%% of %d tokens (%d used)\n",
			RenderLabel("Context:"), usage.UsagePercent, usage.ContextWindowSize, usage.TotalTokens)

	default:
		fmt.Fprintln(env.Stderr, WarningStyle.Render("Unknown command "+fields[0]+" (try /help)"))
	}
	return sess, true
}

func printWelcome(w io.Writer, sess *session) {
	fmt.Fprintln(w, TitleStyle.Render("lexstream "+Version))
	fmt.Fprintln(w, RenderSeparatorAdaptive())
	fmt.Fprintln(w, DimStyle.Render(WrapText("Conversation "+sess.ConversationID()+". Type /help for commands, Ctrl+D to exit.", 0)))
	fmt.Fprintln(w)
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, SectionStyle.Render("Commands:"))
	for _, row := range [][2]string{
		{"/help, /h", "Show this help"},
		{"/new", "Start a new conversation"},
		{"/artifacts", "List the documents of this conversation"},
		{"/context", "Show context window usage"},
		{"/quit, /q", "Exit chat"},
		{"Ctrl+C", "Stop the current response"},
	} {
		fmt.Fprintf(w, "  %s%s\n", RenderLabel(row[0], 14), row[1])
	}
}

// printArtifacts lists every artifact of conv with its latest content.
func printArtifacts(w io.Writer, conv *model.Conversation) {
	found := false
	for _, msg := range conv.Messages {
		for _, a := range msg.Artifacts {
			writeArtifact(w, a)
			found = true
		}
	}
	if !found {
		fmt.Fprintln(w, DimStyle.Render("No documents yet."))
	}
}
