// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the chat client.
type Config struct {
	// BaseURL is the server base URL (default: http://127.0.0.1:8080)
	BaseURL string

	// ChatPath is appended to BaseURL for chat requests (default: /api/chat/stream)
	ChatPath string

	// APIToken is sent as a bearer token when set.
	APIToken string

	// ConnectTimeout bounds dialing and waiting for response headers (default: 10s).
	// The body itself is streamed without a deadline; cancel the context instead.
	ConnectTimeout time.Duration

	// Logger receives request diagnostics. Nil discards them.
	Logger *zap.Logger
}

// Defaults for Config.
const (
	DefaultBaseURL        = "http://127.0.0.1:8080"
	DefaultChatPath       = "/api/chat/stream"
	DefaultConnectTimeout = 10 * time.Second
)

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		ChatPath:       DefaultChatPath,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues streaming chat requests.
// Each call is a single attempt; chat streams are never retried.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client. Zero fields in cfg take their defaults.
func NewClient(cfg *Config) *Client {
	c := DefaultConfig()
	if cfg != nil {
		c.APIToken = cfg.APIToken
		c.Logger = cfg.Logger
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.ChatPath != "" {
			c.ChatPath = cfg.ChatPath
		}
		if cfg.ConnectTimeout > 0 {
			c.ConnectTimeout = cfg.ConnectTimeout
		}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if !strings.HasPrefix(c.ChatPath, "/") {
		c.ChatPath = "/" + c.ChatPath
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   c.ConnectTimeout,
		ResponseHeaderTimeout: c.ConnectTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		config:     *c,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Endpoint returns the full chat URL.
func (c *Client) Endpoint() string {
	return c.config.BaseURL + c.config.ChatPath
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends req and returns the NDJSON response body. The caller must
// close it. Cancelling ctx aborts the request and the body.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if c.config.APIToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		ce := classify(err, "chat request failed")
		c.logger.Warn("chat request failed",
			zap.String("type", ce.Type.String()),
			zap.Error(err),
		)
		return nil, ce
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		ce := statusError(resp)
		c.logger.Warn("chat request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", ce.Message),
		)
		return nil, ce
	}

	c.logger.Debug("chat stream opened",
		zap.String("conversation_id", req.ConversationID),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.Body, nil
}

// statusError builds a ClientError from a non-200 response, preferring the
// message in a JSON error body.
func statusError(resp *http.Response) *ClientError {
	typ := ErrTypeServer
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		typ = ErrTypeInvalidRequest
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
		typ = ErrTypeTimeout
	}

	ce := &ClientError{
		Type:    typ,
		Status:  resp.StatusCode,
		Message: "chat request failed: " + resp.Status,
	}

	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb); err == nil {
		if eb.Error != "" {
			ce.Message = eb.Error
		} else if eb.Message != "" {
			ce.Message = eb.Message
		}
	}
	return ce
}
