// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/lexstream/internal/util"
)

// =============================================================================
// USAGE TRACKER
// =============================================================================

// sessionIDCounter keeps session ids unique when created in the same second.
var sessionIDCounter uint64

// maxPromptWidth bounds the prompt excerpt kept per turn, in columns.
const maxPromptWidth = 100

// maxSlowestTurns is how many turns a session keeps for inspection.
const maxSlowestTurns = 10

// UsageTracker aggregates turn statistics per CLI session and persists them.
type UsageTracker struct {
	mu      sync.RWMutex
	current *SessionUsage
	storage *UsageStorage
}

// TurnRecord describes one ended turn.
type TurnRecord struct {
	Timestamp    time.Time     `json:"timestamp"`
	TurnID       string        `json:"turn_id"`
	Prompt       string        `json:"prompt"`
	Outcome      string        `json:"outcome"`
	Duration     time.Duration `json:"duration"`
	Lines        int           `json:"lines"`
	Dropped      int           `json:"dropped"`
	TotalTokens  int           `json:"total_tokens"`
	UsagePercent int           `json:"usage_percent"`
	Artifacts    int           `json:"artifacts"`
	Edits        int           `json:"edits"`
}

// SessionUsage aggregates the turns of one session.
type SessionUsage struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Turns    int            `json:"turns"`
	Outcomes map[string]int `json:"outcomes"`
	Duration time.Duration  `json:"duration"`

	Lines      int `json:"lines"`
	Dropped    int `json:"dropped"`
	PeakTokens int `json:"peak_tokens"`
	Artifacts  int `json:"artifacts"`
	Edits      int `json:"edits"`

	SlowestTurns []TurnRecord `json:"slowest_turns"`
}

// UsageTrends aggregates sessions over a number of days.
type UsageTrends struct {
	Days             int            `json:"days"`
	Turns            int            `json:"turns"`
	Lines            int            `json:"lines"`
	Dropped          int            `json:"dropped"`
	DailyBreakdown   []DailyUsage   `json:"daily_breakdown"`
	OutcomeBreakdown map[string]int `json:"outcome_breakdown"`
}

// DropRate returns the share of framed lines that were discarded.
func (t *UsageTrends) DropRate() float64 {
	if t.Lines == 0 {
		return 0
	}
	return float64(t.Dropped) / float64(t.Lines)
}

// DailyUsage aggregates the sessions started on one day.
type DailyUsage struct {
	Date     time.Time     `json:"date"`
	Turns    int           `json:"turns"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// NewUsageTracker creates a tracker persisting to dir, or to
// ~/.lexstream/usage when dir is empty.
func NewUsageTracker(dir string) (*UsageTracker, error) {
	storage, err := NewUsageStorage(dir)
	if err != nil {
		return nil, err
	}
	return &UsageTracker{
		current: newSessionUsage(),
		storage: storage,
	}, nil
}

func newSessionUsage() *SessionUsage {
	return &SessionUsage{
		ID:           generateSessionID(),
		StartTime:    time.Now(),
		Outcomes:     make(map[string]int),
		SlowestTurns: make([]TurnRecord, 0),
	}
}

// =============================================================================
// RECORDING
// =============================================================================

// Record adds one turn to the current session.
func (ut *UsageTracker) Record(rec TurnRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Prompt = util.TruncateWidth(util.SingleLine(rec.Prompt), maxPromptWidth)

	ut.mu.Lock()
	defer ut.mu.Unlock()

	s := ut.current
	s.Turns++
	s.Outcomes[rec.Outcome]++
	s.Duration += rec.Duration
	s.Lines += rec.Lines
	s.Dropped += rec.Dropped
	s.Artifacts += rec.Artifacts
	s.Edits += rec.Edits
	s.PeakTokens = max(s.PeakTokens, rec.TotalTokens)

	s.SlowestTurns = append(s.SlowestTurns, rec)
	slices.SortStableFunc(s.SlowestTurns, func(a, b TurnRecord) int {
		switch {
		case a.Duration > b.Duration:
			return -1
		case a.Duration < b.Duration:
			return 1
		default:
			return 0
		}
	})
	if len(s.SlowestTurns) > maxSlowestTurns {
		s.SlowestTurns = s.SlowestTurns[:maxSlowestTurns]
	}
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// Current returns a copy of the current session.
func (ut *UsageTracker) Current() *SessionUsage {
	ut.mu.RLock()
	defer ut.mu.RUnlock()
	return ut.current.clone()
}

// History returns the stored sessions started within [from, to].
func (ut *UsageTracker) History(from, to time.Time) []*SessionUsage {
	ids, err := ut.storage.List(from, to)
	if err != nil {
		return nil
	}

	sessions := make([]*SessionUsage, 0, len(ids))
	for _, id := range ids {
		session, err := ut.storage.Load(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// Trends aggregates the stored sessions of the last days.
func (ut *UsageTracker) Trends(days int) *UsageTrends {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	trends := &UsageTrends{
		Days:             days,
		DailyBreakdown:   make([]DailyUsage, 0),
		OutcomeBreakdown: make(map[string]int),
	}

	daily := make(map[string]*DailyUsage)
	for _, session := range ut.History(from, to) {
		key := session.StartTime.Format("2006-01-02")
		day, ok := daily[key]
		if !ok {
			y, m, d := session.StartTime.Date()
			day = &DailyUsage{Date: time.Date(y, m, d, 0, 0, 0, 0, session.StartTime.Location())}
			daily[key] = day
		}

		day.Turns += session.Turns
		day.Failures += session.Outcomes[OutcomeErrored] + session.Outcomes[OutcomeFailed]
		day.Duration += session.Duration

		trends.Turns += session.Turns
		trends.Lines += session.Lines
		trends.Dropped += session.Dropped
		for outcome, n := range session.Outcomes {
			trends.OutcomeBreakdown[outcome] += n
		}
	}

	for _, day := range daily {
		trends.DailyBreakdown = append(trends.DailyBreakdown, *day)
	}
	slices.SortFunc(trends.DailyBreakdown, func(a, b DailyUsage) int {
		return a.Date.Compare(b.Date)
	})
	return trends
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// EndSession stores the current session and starts a new one. Sessions
// without turns are not stored.
func (ut *UsageTracker) EndSession() error {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	if ut.current.Turns > 0 {
		ut.current.EndTime = time.Now()
		if err := ut.storage.Save(ut.current); err != nil {
			return err
		}
	}
	ut.current = newSessionUsage()
	return nil
}

// Save stores the current session without ending it.
func (ut *UsageTracker) Save() error {
	ut.mu.RLock()
	session := ut.current.clone()
	ut.mu.RUnlock()

	if session.Turns == 0 {
		return nil
	}
	return ut.storage.Save(session)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *SessionUsage) clone() *SessionUsage {
	dst := *s
	dst.Outcomes = make(map[string]int, len(s.Outcomes))
	for k, v := range s.Outcomes {
		dst.Outcomes[k] = v
	}
	dst.SlowestTurns = slices.Clone(s.SlowestTurns)
	return &dst
}

// generateSessionID returns a time-ordered unique id.
func generateSessionID() string {
	counter := atomic.AddUint64(&sessionIDCounter, 1)
	return fmt.Sprintf("%s-%d", time.Now().Format(sessionTimeLayout), counter)
}
