// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lexstream/internal/client"
	"github.com/jeranaias/lexstream/internal/model"
	"github.com/jeranaias/lexstream/internal/stream"
	"github.com/jeranaias/lexstream/internal/telemetry"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// transportFunc adapts a function to the Transport interface.
type transportFunc func(ctx context.Context, req client.ChatRequest) (io.ReadCloser, error)

func (f transportFunc) ChatStream(ctx context.Context, req client.ChatRequest) (io.ReadCloser, error) {
	return f(ctx, req)
}

// staticTransport serves the same payload for every request.
func staticTransport(lines ...string) transportFunc {
	return func(context.Context, client.ChatRequest) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
	}
}

// newPipe returns a body fed by the returned writer. Cancelling ctx closes it
// the way an HTTP body is closed when its request is cancelled.
func newPipe(ctx context.Context) (io.ReadCloser, *io.PipeWriter) {
	pr, pw := io.Pipe()
	go func() {
		<-ctx.Done()
		pr.CloseWithError(ctx.Err())
	}()
	return pr, pw
}

// recorder collects updates delivered to a listener.
type recorder struct {
	mu      sync.Mutex
	updates []Update
	events  chan stream.Event
}

func record(c *Controller) *recorder {
	r := &recorder{events: make(chan stream.Event, 64)}
	c.Subscribe(func(u Update) {
		r.mu.Lock()
		r.updates = append(r.updates, u)
		r.mu.Unlock()
		if u.Kind == UpdateEvent {
			r.events <- u.Event
		}
	})
	return r
}

func (r *recorder) kinds() []UpdateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UpdateKind, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Kind
	}
	return out
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, u := range r.updates {
		if u.Kind == UpdatePhase {
			out = append(out, u.Phase)
		}
	}
	return out
}

func (r *recorder) waitEvent(t *testing.T) stream.Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newTestController(tr Transport, opts ...Option) *Controller {
	opts = append([]Option{WithIDGenerator(model.NewSequenceGenerator("id"))}, opts...)
	return New(model.NewConversation("conv"), tr, opts...)
}

func wait(t *testing.T, turn *Turn) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := turn.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestSendTurn_ReasoningAndContent(t *testing.T) {
	c := newTestController(staticTransport(
		`{"t":"r","v":"Think"}`,
		`{"t":"c","v":"Hello "}`,
		`{"t":"c","v":"world"}`,
	))
	rec := record(c)

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeFinished, outcome.Status)
	conv := c.Messages()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, turn.UserMessageID, conv.Messages[0].ID)
	msg := conv.Messages[1]
	assert.Equal(t, turn.ID, msg.ID)
	assert.Equal(t, "Think", msg.ReasoningContent)
	assert.Equal(t, "Hello world", msg.Content)
	assert.False(t, msg.IsStreaming)
	assert.False(t, msg.IsError)

	assert.Equal(t, []Phase{PhaseThinking, PhaseAnswering, PhaseIdle}, rec.phases())
	kinds := rec.kinds()
	assert.Equal(t, UpdateDone, kinds[len(kinds)-1])
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Active())

	lines, dropped := turn.Stats()
	assert.Equal(t, 3, lines)
	assert.Zero(t, dropped)
}

func TestSendTurn_MessagesVisibleImmediately(t *testing.T) {
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		body, _ := newPipe(ctx)
		return body, nil
	}))

	turn, err := c.SendTurn(context.Background(), "question", TurnOptions{})
	require.NoError(t, err)
	defer turn.Stop()

	conv := c.Messages()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "question", conv.Messages[0].Content)
	assert.True(t, conv.Messages[1].IsStreamingAssistant())
	assert.Same(t, turn, c.Active())
	assert.Equal(t, PhaseThinking, c.Phase())
}

func TestSendTurn_ErrorEventHaltsDispatch(t *testing.T) {
	c := newTestController(staticTransport(
		`{"t":"c","v":"Hello"}`,
		`{"t":"e","v":"boom"}`,
		`{"t":"c","v":" more"}`,
		`{"t":"r","v":"late"}`,
	))

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeErrored, outcome.Status)
	assert.Equal(t, "boom", outcome.ErrorMessage)
	assert.Empty(t, outcome.Category)

	msg := c.Messages().LastMessage()
	assert.True(t, msg.IsError)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "boom", msg.ErrorMessage)
	assert.Equal(t, "Hello", msg.Content)
	assert.Empty(t, msg.ReasoningContent)
}

func TestSendTurn_TransportError(t *testing.T) {
	cause := &client.ClientError{Type: client.ErrTypeNetwork, Message: "chat request failed", Cause: errors.New("connection refused")}
	c := newTestController(transportFunc(func(context.Context, client.ChatRequest) (io.ReadCloser, error) {
		return nil, cause
	}))

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeFailed, outcome.Status)
	assert.Equal(t, client.CategoryNetwork, outcome.Category)
	assert.ErrorIs(t, outcome.Err, cause)

	msg := c.Messages().LastMessage()
	assert.True(t, msg.IsError)
	assert.Equal(t, "chat request failed: connection refused", msg.ErrorMessage)
}

func TestSendTurn_ReadErrorMidStream(t *testing.T) {
	boom := errors.New("connection reset")
	c := newTestController(transportFunc(func(context.Context, client.ChatRequest) (io.ReadCloser, error) {
		r := io.MultiReader(strings.NewReader("{\"t\":\"c\",\"v\":\"partial\"}\n"), &errReader{err: boom})
		return io.NopCloser(r), nil
	}))

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeFailed, outcome.Status)
	msg := c.Messages().LastMessage()
	assert.True(t, msg.IsError)
	assert.Equal(t, "partial", msg.Content)
	assert.Equal(t, "connection reset", msg.ErrorMessage)
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

func TestSendTurn_Empty(t *testing.T) {
	c := newTestController(staticTransport())

	_, err := c.SendTurn(context.Background(), "   ", TurnOptions{})

	assert.ErrorIs(t, err, ErrEmptyTurn)
	assert.Empty(t, c.Messages().Messages)
}

func TestSendTurn_BuildsRequest(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []client.ChatRequest
	)
	c := newTestController(transportFunc(func(_ context.Context, req client.ChatRequest) (io.ReadCloser, error) {
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		return io.NopCloser(strings.NewReader(`{"t":"c","v":"answer"}`)), nil
	}))

	turn, err := c.SendTurn(context.Background(), "one", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	attachments := []model.Attachment{{Name: "lease.pdf", URL: "https://files.example/lease.pdf"}}
	flags := client.Flags{WebSearch: true, DeepThinking: true}
	turn, err = c.SendTurn(context.Background(), "two", TurnOptions{Attachments: attachments, Flags: flags})
	require.NoError(t, err)
	wait(t, turn)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	second := requests[1]
	assert.Equal(t, "conv", second.ConversationID)
	assert.Equal(t, []client.ChatMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "two"},
	}, second.Messages)
	assert.Equal(t, attachments, second.Attachments)
	assert.Equal(t, flags, second.Flags)
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestStop_GracefulFinish(t *testing.T) {
	var writer *io.PipeWriter
	ready := make(chan struct{})
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		body, pw := newPipe(ctx)
		writer = pw
		close(ready)
		return body, nil
	}))
	rec := record(c)

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	<-ready

	go writer.Write([]byte("{\"t\":\"c\",\"v\":\"partial <artifact type=\\\"Document\\\" title=\\\"Memo\\\">draft</artifact>\"}\n"))
	rec.waitEvent(t)

	assert.True(t, c.Stop())
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeStopped, outcome.Status)
	require.Len(t, outcome.Result.NewArtifacts, 1)

	// Later bytes are never applied.
	writer.Write([]byte("{\"t\":\"c\",\"v\":\" more\"}\n"))

	msg := c.Messages().LastMessage()
	assert.False(t, msg.IsStreaming)
	assert.False(t, msg.IsError)
	assert.Equal(t, "partial", msg.Content)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "Memo", msg.Artifacts[0].Title)

	assert.False(t, c.Stop())
	assert.False(t, turn.Stop())
}

func TestSendTurn_ContextCancelStops(t *testing.T) {
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		body, _ := newPipe(ctx)
		return body, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	turn, err := c.SendTurn(ctx, "hi", TurnOptions{})
	require.NoError(t, err)

	cancel()
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeStopped, outcome.Status)
	msg := c.Messages().LastMessage()
	assert.False(t, msg.IsStreaming)
	assert.False(t, msg.IsError)
}

func TestSendTurn_ContextDeadlineFails(t *testing.T) {
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		body, pw := newPipe(ctx)
		go pw.Write([]byte("{\"t\":\"c\",\"v\":\"partial\"}\n"))
		return body, nil
	}))
	rec := record(c)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	turn, err := c.SendTurn(ctx, "hi", TurnOptions{})
	require.NoError(t, err)
	rec.waitEvent(t)
	outcome := wait(t, turn)

	assert.Equal(t, telemetry.OutcomeFailed, outcome.Status)
	assert.Equal(t, client.CategoryTimeout, outcome.Category)
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)

	msg := c.Messages().LastMessage()
	assert.False(t, msg.IsStreaming)
	assert.True(t, msg.IsError)
	assert.Equal(t, "partial", msg.Content)
	assert.Equal(t, "chat stream timed out: context deadline exceeded", msg.ErrorMessage)
}

func TestSetTransport_AppliesToNextTurn(t *testing.T) {
	c := newTestController(staticTransport(`{"t":"c","v":"old server"}`))

	turn, err := c.SendTurn(context.Background(), "one", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	c.SetTransport(staticTransport(`{"t":"c","v":"new server"}`))
	c.SetNotifyRate(0)
	turn, err = c.SendTurn(context.Background(), "two", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	conv := c.Messages()
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "old server", conv.Messages[1].Content)
	assert.Equal(t, "new server", conv.Messages[3].Content)
}

func TestSendTurn_SupersedesActiveTurn(t *testing.T) {
	var (
		mu     sync.Mutex
		calls  int
		writer *io.PipeWriter
	)
	ready := make(chan struct{})
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			body, pw := newPipe(ctx)
			writer = pw
			close(ready)
			return body, nil
		}
		return io.NopCloser(strings.NewReader(`{"t":"c","v":"second answer"}`)), nil
	}))
	rec := record(c)

	first, err := c.SendTurn(context.Background(), "one", TurnOptions{})
	require.NoError(t, err)
	<-ready
	go writer.Write([]byte("{\"t\":\"c\",\"v\":\"first part\"}\n"))
	rec.waitEvent(t)

	second, err := c.SendTurn(context.Background(), "two", TurnOptions{})
	require.NoError(t, err)

	firstOutcome := wait(t, first)
	secondOutcome := wait(t, second)
	assert.Equal(t, telemetry.OutcomeSuperseded, firstOutcome.Status)
	assert.Equal(t, telemetry.OutcomeFinished, secondOutcome.Status)

	conv := c.Messages()
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "first part", conv.Messages[1].Content)
	assert.False(t, conv.Messages[1].IsStreaming)
	assert.False(t, conv.Messages[1].IsError)
	assert.Equal(t, "two", conv.Messages[2].Content)
	assert.Equal(t, "second answer", conv.Messages[3].Content)
}

// =============================================================================
// EVENT MAPPING TESTS
// =============================================================================

func TestSendTurn_StatusAndContext(t *testing.T) {
	c := newTestController(staticTransport(
		`{"t":"s","v":"searching"}`,
		`{"t":"s","v":"using_tool:web_search"}`,
		`{"t":"s","v":"using_tool:web_search"}`,
		`{"t":"s","v":"using_tool:calculator"}`,
		`{"t":"s","v":"compacting"}`,
		`{"t":"x","v":{"usagePercent":12,"totalTokens":900,"contextWindowSize":8000}}`,
		`{"t":"p","v":"plan"}`,
		`{"t":"c","v":"done"}`,
	))
	rec := record(c)

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	msg := c.Messages().LastMessage()
	assert.Equal(t, []string{"web_search", "calculator"}, msg.ToolsUsed)
	assert.Equal(t, "plan", msg.PlanContent)
	assert.Equal(t, stream.ContextEvent{UsagePercent: 12, TotalTokens: 900, ContextWindowSize: 8000}, c.Context())
	assert.Equal(t, []Phase{
		PhaseThinking, PhaseSearching, PhaseUsingTool, PhaseThinking, PhaseAnswering, PhaseIdle,
	}, rec.phases())
}

func TestSendTurn_ClarifyQuestions(t *testing.T) {
	c := newTestController(staticTransport(
		`{"t":"c","v":"Need info.\n<clarify>[{\"question\":\"Which state?\",\"options\":[\"CA\",\"NY\"]}]</clarify>"}`,
	))
	rec := record(c)

	turn, err := c.SendTurn(context.Background(), "draft a lease", TurnOptions{})
	require.NoError(t, err)
	outcome := wait(t, turn)

	require.Len(t, outcome.Questions, 1)
	assert.Equal(t, "Which state?", outcome.Questions[0].Question)
	assert.Equal(t, "Need info.", c.Messages().LastMessage().Content)
	assert.Contains(t, rec.kinds(), UpdateClarify)
}

func TestSendTurn_ArtifactRevisionAcrossTurns(t *testing.T) {
	payloads := []string{
		`{"t":"c","v":"<artifact type=\"Contract\" title=\"Lease\">Rent 1000</artifact>"}`,
		`{"t":"c","v":"Updated. <artifact type=\"Contract\" title=\"lease\">Rent 1200</artifact>"}`,
	}
	var (
		mu   sync.Mutex
		call int
	)
	c := newTestController(transportFunc(func(context.Context, client.ChatRequest) (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		p := payloads[call]
		call++
		return io.NopCloser(strings.NewReader(p)), nil
	}))

	for _, text := range []string{"draft", "raise rent"} {
		turn, err := c.SendTurn(context.Background(), text, TurnOptions{})
		require.NoError(t, err)
		wait(t, turn)
	}

	conv := c.Messages()
	require.Len(t, conv.Messages, 4)
	require.Len(t, conv.Messages[1].Artifacts, 1)
	assert.Equal(t, "Rent 1200", conv.Messages[1].Artifacts[0].Content)
	assert.Empty(t, conv.Messages[3].Artifacts)
	assert.Equal(t, "Updated.", conv.Messages[3].Content)
}

func TestSendTurn_Metrics(t *testing.T) {
	m := telemetry.NewMetrics()
	c := newTestController(staticTransport(
		`{"t":"c","v":"<artifact type=\"Code\" title=\"x\">print(1)</artifact>"}`,
		`garbage`,
		`{"t":"x","v":{"usagePercent":40}}`,
	), WithMetrics(m))

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	lines, dropped := turn.Stats()
	assert.Equal(t, 3, lines)
	assert.Equal(t, 1, dropped)

	expected := `
# HELP lexstream_turns_total Completed turns by outcome.
# TYPE lexstream_turns_total counter
lexstream_turns_total{outcome="finished"} 1
# HELP lexstream_artifacts_total Reconciled artifacts by result (new or updated).
# TYPE lexstream_artifacts_total counter
lexstream_artifacts_total{result="new"} 1
lexstream_artifacts_total{result="updated"} 0
# HELP lexstream_context_usage_percent Last reported context window usage.
# TYPE lexstream_context_usage_percent gauge
lexstream_context_usage_percent 40
# HELP lexstream_stream_dropped_lines_total Lines discarded as malformed or unknown.
# TYPE lexstream_stream_dropped_lines_total counter
lexstream_stream_dropped_lines_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"lexstream_turns_total",
		"lexstream_artifacts_total",
		"lexstream_context_usage_percent",
		"lexstream_stream_dropped_lines_total",
	))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := newTestController(staticTransport(`{"t":"c","v":"x"}`))
	var mu sync.Mutex
	count := 0
	unsubscribe := c.Subscribe(func(Update) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()
	unsubscribe()

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestNotifyRate_ThrottlesStreamingMessages(t *testing.T) {
	lines := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		lines = append(lines, `{"t":"c","v":"x"}`)
	}
	c := newTestController(staticTransport(lines...), WithNotifyRate(1))
	rec := record(c)

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	wait(t, turn)

	messages := 0
	for _, k := range rec.kinds() {
		if k == UpdateMessage {
			messages++
		}
	}
	// user + placeholder + at most a couple of throttled snapshots + final.
	assert.LessOrEqual(t, messages, 5)
	assert.Equal(t, strings.Repeat("x", 50), c.Messages().LastMessage().Content)
}

func TestStop_FromListener(t *testing.T) {
	var writer *io.PipeWriter
	ready := make(chan struct{})
	c := newTestController(transportFunc(func(ctx context.Context, _ client.ChatRequest) (io.ReadCloser, error) {
		body, pw := newPipe(ctx)
		writer = pw
		close(ready)
		return body, nil
	}))
	c.Subscribe(func(u Update) {
		if u.Kind == UpdateEvent {
			c.Stop()
		}
	})

	turn, err := c.SendTurn(context.Background(), "hi", TurnOptions{})
	require.NoError(t, err)
	<-ready
	go writer.Write([]byte("{\"t\":\"c\",\"v\":\"only\"}\n"))

	outcome := wait(t, turn)
	assert.Equal(t, telemetry.OutcomeStopped, outcome.Status)
	assert.Equal(t, "only", c.Messages().LastMessage().Content)
}
