// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides pipeline metrics and turn usage tracking.
//
// Metrics are Prometheus collectors on a private registry covering framing,
// decoding, turn outcomes, reconciliation and context window usage. Usage
// tracking aggregates finished turns per CLI session and keeps them on disk
// for trend reports.
//
// # Key Types
//
//   - Metrics: Prometheus counters, safe to use through a nil pointer
//   - UsageTracker: per-session turn aggregation
//   - UsageStorage: one JSON file per stored session
//   - UsageTrends: day-by-day aggregation over stored sessions
//
// # Usage
//
//	m := telemetry.NewMetrics()
//	go m.Serve(ctx, ":9090")
//
//	tracker, _ := telemetry.NewUsageTracker("")
//	tracker.Record(telemetry.TurnRecord{Outcome: telemetry.OutcomeFinished})
//	defer tracker.EndSession()
//
// # Privacy
//
// Usage data is local-only. Only the first columns of each prompt are kept.
package telemetry
