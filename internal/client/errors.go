// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"net"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents a transport failure of a chat request.
type ClientError struct {
	Type    ErrorType
	Message string
	Status  int // HTTP status, 0 when no response was received
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNetwork
	ErrTypeTimeout
	ErrTypeServer
	ErrTypeCanceled
	ErrTypeInvalidRequest
)

// String returns the type name used in logs.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNetwork:
		return "network"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeServer:
		return "server"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Short user-facing categories.
const (
	CategoryNetwork  = "network"
	CategoryTimeout  = "timeout"
	CategoryServer   = "server"
	CategoryCanceled = "canceled"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classify wraps a failed request in a ClientError.
func classify(err error, message string) *ClientError {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}

	typ := ErrTypeNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		typ = ErrTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		typ = ErrTypeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		typ = ErrTypeTimeout
	}
	return &ClientError{Type: typ, Message: message, Cause: err}
}

func typeOf(err error) ErrorType {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return classify(err, "").Type
}

// IsTimeout checks if an error is a timeout.
func IsTimeout(err error) bool {
	return err != nil && typeOf(err) == ErrTypeTimeout
}

// IsCanceled checks if an error came from cancelling the request.
func IsCanceled(err error) bool {
	return err != nil && typeOf(err) == ErrTypeCanceled
}

// Category maps an error to a short category: network, timeout, server or
// canceled. Anything that is not a transport problem counts as server.
func Category(err error) string {
	if err == nil {
		return ""
	}
	switch typeOf(err) {
	case ErrTypeNetwork:
		return CategoryNetwork
	case ErrTypeTimeout:
		return CategoryTimeout
	case ErrTypeCanceled:
		return CategoryCanceled
	default:
		return CategoryServer
	}
}

// UserMessage returns a short message suitable for display.
func UserMessage(err error) string {
	switch Category(err) {
	case CategoryNetwork:
		return "Network error. Check your connection and try again."
	case CategoryTimeout:
		return "The server took too long to respond."
	case CategoryCanceled:
		return "Request cancelled."
	case CategoryServer:
		return "The server could not complete the request."
	default:
		return ""
	}
}
