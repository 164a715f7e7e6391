// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - The config command.
//
// Command: config
// Short:   Show or change the configuration
//
// Examples:
//   lexstream config show
//   lexstream config get server.base_url
//   lexstream config set stream.notify_fps 60
//   lexstream config keys

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/lexstream/internal/config"
)

// ConfigCommand returns the config command with subcommands.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration (token redacted)",
				Action: configShowAction,
			},
			{
				Name:   "path",
				Usage:  "Print the config file in use",
				Action: configPathAction,
			},
			{
				Name:      "get",
				Usage:     "Print one value",
				ArgsUsage: "KEY",
				Action:    configGetAction,
			},
			{
				Name:      "set",
				Usage:     "Change one value in the config file",
				ArgsUsage: "KEY VALUE",
				Action:    configSetAction,
			},
			{
				Name:   "keys",
				Usage:  "List every configuration key",
				Action: configKeysAction,
			},
		},
	}
}

func configShowAction(c *cli.Context) error {
	env := envFrom(c)
	safe := env.Config.Clone()
	if safe.Server.APIToken != "" {
		safe.Server.APIToken = "[REDACTED]"
	}
	return env.Output("config show", safe, func(w io.Writer) error {
		_, err := io.WriteString(w, env.Config.String())
		return err
	})
}

// configFilePath returns the file config set writes to: the one in use, or
// the default TOML path.
func configFilePath(env *Env) (string, error) {
	if env.ConfigPath != "" {
		return env.ConfigPath, nil
	}
	return config.DefaultPath()
}

func configPathAction(c *cli.Context) error {
	env := envFrom(c)
	path, err := configFilePath(env)
	if err != nil {
		return &ConfigError{Err: err}
	}
	data := map[string]any{"path": path, "exists": env.ConfigPath != ""}
	return env.Output("config path", data, func(w io.Writer) error {
		if env.ConfigPath == "" {
			_, err := fmt.Fprintf(w, "%s %s\n", path, DimStyle.Render("(not created yet, using defaults)"))
			return err
		}
		_, err := fmt.Fprintln(w, path)
		return err
	})
}

func configGetAction(c *cli.Context) error {
	env := envFrom(c)
	if c.NArg() != 1 {
		return NewValidationErrorWithExample("arguments", strings.Join(c.Args().Slice(), " "), "expected one key", "lexstream config get server.base_url")
	}
	key := c.Args().First()

	value, err := env.Config.Get(key)
	if err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if key == "server.api_token" && value != "" {
		value = "[REDACTED]"
	}
	return env.Output("config get", map[string]any{"key": key, "value": value}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, value)
		return err
	})
}

func configSetAction(c *cli.Context) error {
	env := envFrom(c)
	if c.NArg() != 2 {
		return NewValidationErrorWithExample("arguments", strings.Join(c.Args().Slice(), " "), "expected a key and a value", "lexstream config set stream.notify_fps 60")
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	path, err := configFilePath(env)
	if err != nil {
		return &ConfigError{Err: err}
	}

	// Edit the file as written, so environment overrides are not persisted.
	cfg := config.Default()
	if env.ConfigPath != "" {
		if cfg, err = config.ReadFile(path); err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.SaveAs(cfg, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	return env.Output("config set", map[string]any{"key": key, "value": value, "path": path}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s %s = %s (%s)\n", SuccessStyle.Render("Set"), key, value, path)
		return err
	})
}

func configKeysAction(c *cli.Context) error {
	env := envFrom(c)
	keys := config.GetAllKeys()
	return env.Output("config keys", keys, func(w io.Writer) error {
		for _, key := range keys {
			value, _ := env.Config.Get(key)
			if key == "server.api_token" && value != "" {
				value = "[REDACTED]"
			}
			fmt.Fprintf(w, "%s%v\n", RenderLabel(key, 28), value)
		}
		return nil
	})
}
