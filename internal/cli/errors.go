// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all lexstream commands.
//
// Commands always return errors and never print and exit themselves. Run
// displays the error once and maps it to an exit code.

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/config"
	"github.com/jeranaias/lexstream/internal/storage"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitServerError indicates the server rejected or broke off the request
	ExitServerError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitTurnError indicates the server ended the turn with an error event
	ExitTurnError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "history", "config")
	Action  string // Action being performed (e.g., "show", "set")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Example != "" {
		msg += " (example: " + e.Example + ")"
	}
	return msg
}

// ConfigError wraps a failure to load, validate or save the configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TurnError reports a turn that ended errored or failed.
type TurnError struct {
	Status   string // telemetry.OutcomeErrored or telemetry.OutcomeFailed
	Message  string
	Category string // transport category of failed turns
	Err      error
}

func (e *TurnError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("turn %s (%s): %s", e.Status, e.Category, e.Message)
	}
	return fmt.Sprintf("turn %s: %s", e.Status, e.Message)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// reportedError wraps an error whose JSON response was already written.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validation *ValidationError
		cfgErr     *ConfigError
		cfgInvalid config.ValidateErrors
		turnErr    *TurnError
	)
	switch {
	case errors.As(err, &validation):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &cfgInvalid):
		return ExitConfigError
	case errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.As(err, &turnErr):
		if turnErr.Status == telemetry.OutcomeErrored {
			return ExitTurnError
		}
		switch turnErr.Category {
		case client.CategoryNetwork:
			return ExitNetworkError
		case client.CategoryTimeout:
			return ExitTimeoutError
		default:
			return ExitServerError
		}
	case isUsageError(err):
		return ExitUsageError
	}
	return ExitGeneralError
}

// isUsageError recognizes the flag and argument errors of the cli package,
// which are plain errors.
func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "flag provided but not defined") ||
		strings.HasPrefix(msg, "invalid value") ||
		strings.HasPrefix(msg, "Required flag") ||
		strings.HasPrefix(msg, "No help topic")
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err in a consistent format: a JSON error response in
// JSON mode, a styled one-liner otherwise.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	var reported reportedError
	if err == nil || errors.As(err, &reported) {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("Error:"), err)

	var turnErr *TurnError
	if errors.As(err, &turnErr) && turnErr.Err != nil {
		fmt.Fprintln(w, DimStyle.Render(client.UserMessage(turnErr.Err)))
	}
}
