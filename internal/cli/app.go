// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Application wiring for the lexstream CLI.
//
// Global flags are resolved once in setup into an Env shared by every
// command: configuration, logger, metrics, and the output writers.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/config"
	"github.com/jeranaias/lexstream/internal/logging"
	"github.com/jeranaias/lexstream/internal/storage"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const envKey = "lexstream.env"

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env holds what every command needs. It is built by the app's Before hook.
type Env struct {
	Config *config.Config

	// ConfigPath is the file the configuration came from, "" for defaults.
	ConfigPath string

	Logger  *zap.Logger
	Metrics *telemetry.Metrics

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	JSON   bool

	stopMetrics context.CancelFunc
}

// OpenStore opens the configured conversation store.
func (e *Env) OpenStore() (storage.Store, error) {
	return storage.Open(e.Config.Storage)
}

// envFrom returns the Env built by setup.
func envFrom(c *cli.Context) *Env {
	env, ok := c.App.Metadata[envKey].(*Env)
	if !ok {
		panic("cli: command run without app setup")
	}
	return env
}

// =============================================================================
// APP
// =============================================================================

// GlobalFlags returns the flags accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Config file (default: ~/.lexstream/config.{toml,json,yaml})",
			EnvVars: []string{"LEXSTREAM_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: console, json",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output in JSON format",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
	}
}

// NewApp builds the lexstream application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "lexstream",
		Usage:   "Stream legal chat turns and keep their documents up to date",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Flags:   GlobalFlags(),
		Before:  setup,
		After:   teardown,
		Commands: []*cli.Command{
			ChatCommand(),
			ReplayCommand(),
			HistoryCommand(),
			ConfigCommand(),
			UsageCommand(),
		},
		Reader:    os.Stdin,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Metadata:  map[string]any{},
	}
}

// Run executes the app with args (including the program name) and returns
// the process exit code.
func Run(ctx context.Context, app *cli.App, args []string) int {
	// Errors are displayed here, not by the cli package's exit handler.
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.RunContext(ctx, args)
	if err == nil {
		return ExitSuccess
	}

	jsonMode := slices.Contains(args, "--json")
	w := app.ErrWriter
	if jsonMode {
		w = app.Writer
	}
	DisplayError(w, commandName(args), err, jsonMode)
	return ExitCode(err)
}

// commandName returns the first non-flag argument after the program name.
func commandName(args []string) string {
	for i := 1; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "--log-level" || args[i] == "--log-format" || args[i] == "--metrics-addr" {
			i++
			continue
		}
		if len(args[i]) > 0 && args[i][0] != '-' {
			return args[i]
		}
	}
	return ""
}

// =============================================================================
// SETUP
// =============================================================================

// setup resolves the global flags into an Env.
func setup(c *cli.Context) error {
	cfg, path, err := loadConfig(c.String("config"))
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := c.String("metrics-addr"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	logger, err := logging.New(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if c.Bool("no-color") {
		ForceColorsEnabled(false)
	}

	env := &Env{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Metrics:    telemetry.NewMetrics(),
		Stdin:      c.App.Reader,
		Stdout:     c.App.Writer,
		Stderr:     c.App.ErrWriter,
		JSON:       c.Bool("json"),
	}
	if cfg.Metrics.Enabled {
		env.serveMetrics()
	}

	c.App.Metadata[envKey] = env
	logger.Debug("configuration loaded",
		zap.String("path", path),
		zap.String("server", cfg.Server.BaseURL),
		zap.String("storage", cfg.Storage.Backend),
	)
	return nil
}

// loadConfig loads the explicit path when given, else searches ConfigDir.
// The returned path is "" when the defaults were used.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		return cfg, path, err
	}
	found, err := config.FindConfigFile()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load()
	return cfg, found, err
}

func (e *Env) serveMetrics() {
	ctx, cancel := context.WithCancel(context.Background())
	e.stopMetrics = cancel
	addr := e.Config.Metrics.Addr

	go func() {
		if err := e.Metrics.Serve(ctx, addr); err != nil {
			e.Logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	e.Logger.Info("serving metrics", zap.String("addr", addr))
}

func teardown(c *cli.Context) error {
	env, ok := c.App.Metadata[envKey].(*Env)
	if !ok {
		return nil
	}
	if env.stopMetrics != nil {
		env.stopMetrics()
	}
	_ = env.Logger.Sync()
	return nil
}
