// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// reload.go - Config file reloads during an interactive chat.

package cli

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/lexstream/internal/config"
)

// configWatch holds the newest valid edit of the config file until the chat
// is between turns.
type configWatch struct {
	mu      sync.Mutex
	pending *config.Config
}

// watchConfig watches env.ConfigPath until ctx is done. Nothing is watched
// when the defaults are in use.
func watchConfig(ctx context.Context, env *Env) *configWatch {
	w := &configWatch{}
	if env.ConfigPath == "" {
		return w
	}

	path := env.ConfigPath
	go func() {
		err := config.Watch(ctx, path, 0, w.offer, func(err error) {
			env.Logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		})
		if err != nil {
			env.Logger.Warn("config watch unavailable", zap.String("path", path), zap.Error(err))
		}
	}()
	return w
}

func (w *configWatch) offer(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = cfg
}

// take returns the pending config, or nil, and clears it.
func (w *configWatch) take() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg := w.pending
	w.pending = nil
	return cfg
}

// applyConfig copies the server connection and notification rate of next
// into env, and points the session and later sessions at the new server.
func applyConfig(env *Env, sess *session, opts *sessionOptions, next *config.Config) {
	env.Config.Server = next.Server
	env.Config.Stream.NotifyFPS = next.Stream.NotifyFPS

	opts.Transport = newTransport(env)
	sess.ctrl.SetTransport(opts.Transport)
	sess.ctrl.SetNotifyRate(float64(env.Config.Stream.NotifyFPS))

	env.Logger.Info("configuration reloaded",
		zap.String("path", env.ConfigPath),
		zap.String("server", env.Config.Server.BaseURL),
		zap.Int("notify_fps", env.Config.Stream.NotifyFPS),
	)
}
