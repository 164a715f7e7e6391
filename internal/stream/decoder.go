// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// maxExactFloat bounds integers that survive a float64 round trip.
const maxExactFloat = 1 << 53

// DefaultErrorMessage is used when an error record carries no usable message.
const DefaultErrorMessage = "Unknown error"

// record is the wire envelope: {"t": <kind>, "v": <payload>}.
type record struct {
	T json.RawMessage `json:"t"`
	V json.RawMessage `json:"v"`
}

// contextPayload is the "x" payload. Fields stay raw so numbers and numeric
// strings can both be accepted.
type contextPayload struct {
	UsagePercent      json.RawMessage `json:"usagePercent"`
	TotalTokens       json.RawMessage `json:"totalTokens"`
	ContextWindowSize json.RawMessage `json:"contextWindowSize"`
	Compacting        json.RawMessage `json:"compacting"`
}

// DecodeLine turns one complete NDJSON line into an event.
//
// The second result is false when the line yields nothing: invalid JSON, a
// value that is not an object, a missing or non-string "t", an unknown "t",
// or a payload of the wrong shape. Such lines are dropped, never reported.
func DecodeLine(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var rec record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, false
	}

	var kind string
	if len(rec.T) == 0 || json.Unmarshal(rec.T, &kind) != nil {
		return nil, false
	}

	switch Kind(kind) {
	case KindContent:
		if text, ok := rawString(rec.V); ok {
			return ContentEvent{Text: text}, true
		}
	case KindReasoning:
		if text, ok := rawString(rec.V); ok {
			return ReasoningEvent{Text: text}, true
		}
	case KindPlan:
		if text, ok := rawString(rec.V); ok {
			return PlanEvent{Text: text}, true
		}
	case KindStatus:
		if status, ok := rawString(rec.V); ok {
			return StatusEvent{Status: status}, true
		}
	case KindError:
		msg, ok := rawString(rec.V)
		if !ok {
			msg = DefaultErrorMessage
		}
		return ErrorEvent{Message: msg}, true
	case KindContext:
		return decodeContext(rec.V)
	}
	return nil, false
}

func decodeContext(raw json.RawMessage) (Event, bool) {
	v := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(v, "{") {
		return nil, false
	}
	var p contextPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return ContextEvent{
		UsagePercent:      rawInt(p.UsagePercent),
		TotalTokens:       rawInt(p.TotalTokens),
		ContextWindowSize: rawInt(p.ContextWindowSize),
		Compacting:        rawBool(p.Compacting),
	}, true
}

// rawString reports the value of a JSON string, or false for anything else.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// rawInt coerces a JSON number or numeric string to int, truncating
// fractions. Anything else is 0.
func rawInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if raw[0] == '"' {
		s, ok := rawString(raw)
		if !ok {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = parsed
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxExactFloat {
		return 0
	}
	return int(f)
}

// rawBool accepts only JSON true; anything else is false.
func rawBool(raw json.RawMessage) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}
