// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage_cmd.go - The usage command.
//
// Command: usage
// Short:   Summarize recorded turns
//
// Examples:
//   lexstream usage
//   lexstream usage --days 30
//   lexstream --json usage --sessions

package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jeranaias/lexstream/internal/telemetry"
)

// UsageCommand returns the usage command.
func UsageCommand() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Summarize recorded turns",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Usage: "Number of days to cover",
				Value: 7,
			},
			&cli.BoolFlag{
				Name:  "sessions",
				Usage: "List the sessions instead of the trend summary",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Usage directory (default: ~/.lexstream/usage)",
			},
		},
		Action: usageAction,
	}
}

func usageAction(c *cli.Context) error {
	env := envFrom(c)
	days := c.Int("days")
	if days <= 0 {
		return NewValidationError("days", strconv.Itoa(days), "must be positive")
	}

	tracker, err := telemetry.NewUsageTracker(c.String("dir"))
	if err != nil {
		return NewCommandError("usage", "open", "usage directory unavailable", err)
	}

	if c.Bool("sessions") {
		to := time.Now()
		sessions := tracker.History(to.AddDate(0, 0, -days), to)
		return env.Output("usage", sessions, func(w io.Writer) error {
			writeSessions(w, sessions)
			return nil
		})
	}

	trends := tracker.Trends(days)
	return env.Output("usage", trends, func(w io.Writer) error {
		writeTrends(w, trends)
		return nil
	})
}

func writeTrends(w io.Writer, t *telemetry.UsageTrends) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Usage, last %d days", t.Days)))
	if t.Turns == 0 {
		fmt.Fprintln(w, DimStyle.Render("No turns recorded."))
		return
	}

	fmt.Fprintf(w, "%s%s\n", RenderLabel("Turns:"), ValueStyle.Render(strconv.Itoa(t.Turns)))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Lines:"), ValueStyle.Render(strconv.Itoa(t.Lines)))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Dropped lines:"), ValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", t.Dropped, t.DropRate()*100)))

	fmt.Fprintln(w, SectionStyle.Render("Outcomes"))
	for _, outcome := range slices.Sorted(maps.Keys(t.OutcomeBreakdown)) {
		fmt.Fprintf(w, "  %s %s%d\n", RenderStatus(outcome), RenderLabel(outcome, 12), t.OutcomeBreakdown[outcome])
	}

	fmt.Fprintln(w, SectionStyle.Render("Daily"))
	for _, day := range t.DailyBreakdown {
		fmt.Fprintf(w, "  %s %4d turns %3d failed %s\n",
			day.Date.Format("2006-01-02"), day.Turns, day.Failures, formatDurationShort(day.Duration))
	}
}

func writeSessions(w io.Writer, sessions []*telemetry.SessionUsage) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No sessions recorded."))
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s %s %3d turns %s peak %d tokens\n",
			s.StartTime.Local().Format("2006-01-02 15:04"), s.ID, s.Turns,
			formatDurationShort(s.Duration), s.PeakTokens)
		for _, turn := range s.SlowestTurns {
			if turn.Duration < time.Second {
				continue
			}
			fmt.Fprintf(w, "    %s %s %s\n", formatDurationShort(turn.Duration), RenderStatus(turn.Outcome), DimStyle.Render(turn.Prompt))
		}
	}
}
