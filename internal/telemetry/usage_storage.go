// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/lexstream/internal/util"
)

// sessionTimeLayout prefixes every session id.
const sessionTimeLayout = "20060102-150405"

// =============================================================================
// USAGE STORAGE
// =============================================================================

// UsageStorage persists sessions as one JSON file each.
type UsageStorage struct {
	dir string
}

// NewUsageStorage opens dir, defaulting to ~/.lexstream/usage.
func NewUsageStorage(dir string) (*UsageStorage, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".lexstream", "usage")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	return &UsageStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (us *UsageStorage) Dir() string {
	return us.dir
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save writes a session atomically.
func (us *UsageStorage) Save(session *SessionUsage) error {
	if session == nil {
		return nil
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(us.path(session.ID), data, 0644)
}

// Load reads a stored session.
func (us *UsageStorage) Load(sessionID string) (*SessionUsage, error) {
	data, err := os.ReadFile(us.path(sessionID))
	if err != nil {
		return nil, err
	}

	var session SessionUsage
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse usage session %s: %w", sessionID, err)
	}
	if session.Outcomes == nil {
		session.Outcomes = make(map[string]int)
	}
	return &session, nil
}

// List returns the ids of sessions started within [from, to], oldest first.
func (us *UsageStorage) List(from, to time.Time) ([]string, error) {
	ids, err := us.ids()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		ts, ok := sessionTime(id)
		if !ok || ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes one stored session.
func (us *UsageStorage) Delete(sessionID string) error {
	return os.Remove(us.path(sessionID))
}

// DeleteBefore removes sessions started before the given time.
func (us *UsageStorage) DeleteBefore(before time.Time) error {
	ids, err := us.ids()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if ts, ok := sessionTime(id); ok && ts.Before(before) {
			os.Remove(us.path(id))
		}
	}
	return nil
}

// Count returns the number of stored sessions.
func (us *UsageStorage) Count() (int, error) {
	ids, err := us.ids()
	return len(ids), err
}

// =============================================================================
// HELPERS
// =============================================================================

func (us *UsageStorage) path(id string) string {
	return filepath.Join(us.dir, id+".json")
}

func (us *UsageStorage) ids() ([]string, error) {
	entries, err := os.ReadDir(us.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// sessionTime parses the local timestamp prefix of a session id.
func sessionTime(id string) (time.Time, bool) {
	if len(id) < len(sessionTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(sessionTimeLayout, id[:len(sessionTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
