package accumulator

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/llm"
	"github.com/richinex/chatkit/model"
)

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("r%d", n)
	}
}

func withAssistant(a *Accumulator) *[]model.Message {
	msgs := []model.Message{
		model.NewMessage(model.MessageHuman, "hi"),
		model.NewMessage(model.MessageAssistant, ""),
	}
	a.AttachMessages(&msgs)
	return &msgs
}

func TestReasoningDeltasAndResult(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New(WithSessionIDs(counterIDs()))

	a.Process(f.Thinking("step1", chunk.ThinkingOpts{}))
	if !a.ShowThinking() || a.CurrentActivity() != ActivityThinking {
		t.Errorf("show=%v activity=%q", a.ShowThinking(), a.CurrentActivity())
	}
	a.Process(f.Thinking("step2", chunk.ThinkingOpts{Delta: true}))
	a.Process(f.ThinkingResult("done", ""))

	items := a.Thinking()
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	got := items[0]
	if got.Type != model.ThinkingReasoning || got.ID != "r1" {
		t.Errorf("item identity = %s/%s", got.Type, got.ID)
	}
	if got.Text != "step1step2 done" {
		t.Errorf("Text = %q, want %q", got.Text, "step1step2 done")
	}
	if got.Status != model.ThinkingCompleted {
		t.Errorf("Status = %s", got.Status)
	}
}

func TestNonDeltaThinking(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"single", []string{"plan"}, "plan"},
		{"redelivered", []string{"plan", "plan"}, "plan"},
		{"distinct", []string{"plan", "refine"}, "plan\nrefine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := chunk.NewFactory("test")
			a := New()
			for _, text := range tt.chunks {
				a.Process(f.Thinking(text, chunk.ThinkingOpts{}))
			}
			items := a.Thinking()
			if len(items) != 1 || items[0].Text != tt.want {
				t.Errorf("items = %+v, want text %q", items, tt.want)
			}
		})
	}
}

func TestReasoningSessionMetadataIsShared(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()

	for _, text := range []string{"a", "b"} {
		a.Process(f.Create(chunk.TypeThinking, text, map[string]any{
			chunk.KeyReasoningSession: "rs1",
			chunk.KeyDelta:            text,
		}))
	}
	a.Process(f.ThinkingResult("", "rs1"))

	items := a.Thinking()
	if len(items) != 1 || items[0].ID != "rs1" || items[0].Text != "ab" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Status != model.ThinkingCompleted {
		t.Errorf("Status = %s", items[0].Status)
	}
	if a.ReasoningSession() != "" {
		t.Errorf("explicit ids should not move the inferred session, got %q", a.ReasoningSession())
	}
}

func TestReasoningIDIsNotASessionKey(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New(WithSessionIDs(counterIDs()))

	a.Process(f.Thinking("a", chunk.ThinkingOpts{ReasoningID: "x1", Delta: true}))
	a.Process(f.Thinking("b", chunk.ThinkingOpts{ReasoningID: "x2", Delta: true}))
	a.Process(f.ThinkingResult("done", ""))

	items := a.Thinking()
	if len(items) != 1 {
		t.Fatalf("items = %+v, want one", items)
	}
	if items[0].ID != "r1" || items[0].Text != "ab done" {
		t.Errorf("item = %s %q", items[0].ID, items[0].Text)
	}
	if items[0].Status != model.ThinkingCompleted {
		t.Errorf("Status = %s", items[0].Status)
	}
	if a.ReasoningSession() != "r1" {
		t.Errorf("ReasoningSession = %q", a.ReasoningSession())
	}
}

func TestNewReasoningSessionAfterToolOrCompletedTrace(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New(WithSessionIDs(counterIDs()))

	a.Process(f.Thinking("a", chunk.ThinkingOpts{}))
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "search", ToolID: "t1"}))
	a.Process(f.Thinking("b", chunk.ThinkingOpts{}))
	a.Process(f.ThinkingResult("", ""))
	a.Process(f.Thinking("c", chunk.ThinkingOpts{}))

	var ids []string
	for _, item := range a.Thinking() {
		if item.Type == model.ThinkingReasoning {
			ids = append(ids, item.ID+":"+item.Text)
		}
	}
	want := []string{"r1:a", "r2:b", "r3:c"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("reasoning items = %v, want %v", ids, want)
	}
}

func TestDefaultSessionIDFormat(t *testing.T) {
	id := newReasoningSessionID()
	if len(id) != len("reasoning_")+8 || id[:len("reasoning_")] != "reasoning_" {
		t.Errorf("id = %q", id)
	}
}

func TestToolCallThenResult(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()

	a.Process(f.ToolCall("searching", chunk.ToolCallOpts{ToolName: "search", ToolID: "t1"}))
	if a.CurrentActivity() != "Using tool: search..." {
		t.Errorf("activity = %q", a.CurrentActivity())
	}
	a.Process(f.ToolResult("3 hits", "t1", chunk.ToolResultOpts{}))

	items := a.Thinking()
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	got := items[0]
	if got.Type != model.ThinkingToolCall || got.ID != "t1" || got.ToolName != "search" {
		t.Errorf("item = %+v", got)
	}
	if got.Parameters != "searching" {
		t.Errorf("Parameters = %q", got.Parameters)
	}
	if got.Status != model.ThinkingCompleted || got.Result != "3 hits" {
		t.Errorf("status=%s result=%q", got.Status, got.Result)
	}
	if a.ToolSession() != "t1" {
		t.Errorf("ToolSession = %q", a.ToolSession())
	}
}

func TestToolResultErrorFlag(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		isError bool
		want    model.ThinkingStatus
	}{
		{"flagged", "boom", true, model.ThinkingError},
		{"text mentions error", "no error found", false, model.ThinkingCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := chunk.NewFactory("test")
			a := New()
			a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "run", ToolID: "t1"}))
			a.Process(f.ToolResult(tt.text, "t1", chunk.ToolResultOpts{IsError: tt.isError}))

			got := a.Thinking()[0]
			if got.Status != tt.want {
				t.Errorf("Status = %s, want %s", got.Status, tt.want)
			}
			if tt.isError && got.Error != tt.text {
				t.Errorf("Error = %q", got.Error)
			}
			if !tt.isError && got.Error != "" {
				t.Errorf("unexpected Error %q", got.Error)
			}
		})
	}
}

func TestToolResultWithoutIDUsesCurrentSession(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "search"}))
	a.Process(f.ToolResult("ok", "", chunk.ToolResultOpts{}))
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "fetch"}))

	items := a.Thinking()
	if len(items) != 2 || items[0].ID != "tool_0" || items[1].ID != "tool_1" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Result != "ok" {
		t.Errorf("result landed on %+v", items)
	}
}

func TestUnknownToolNameNeverOverwrites(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "fetch", ServerLabel: "docs", ToolID: "t1"}))
	if a.CurrentActivity() != "Using tool: docs.fetch..." {
		t.Errorf("activity = %q", a.CurrentActivity())
	}
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: UnknownTool, ToolID: "t1"}))
	a.Process(f.ToolResult("done", "t1", chunk.ToolResultOpts{}))

	if got := a.Thinking()[0].ToolName; got != "docs.fetch" {
		t.Errorf("ToolName = %q, want docs.fetch", got)
	}
}

func TestActionAppendsNote(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "browse", ToolID: "t1", Description: "Using tool: browse"}))
	a.Process(f.Action("clicked", "t1"))

	if got := a.Thinking()[0].Text; got != "Using tool: browse\n---\nAction: clicked" {
		t.Errorf("Text = %q", got)
	}

	b := New()
	b.Process(f.Action("scrolled", ""))
	items := b.Thinking()
	if len(items) != 1 || items[0].ID != "tool_0" || items[0].Text != "\n---\nAction: scrolled" {
		t.Errorf("items = %+v", items)
	}
}

func TestTextAppendsToAssistant(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	msgs := withAssistant(a)

	a.Process(f.TextDelta("Hel"))
	a.Process(f.TextDelta("lo"))

	if got := (*msgs)[1].Text; got != "Hello" {
		t.Errorf("assistant text = %q", got)
	}
	if (*msgs)[0].Text != "hi" {
		t.Errorf("human message changed: %q", (*msgs)[0].Text)
	}
}

func TestTextWithoutAssistantIsDropped(t *testing.T) {
	a := New()
	a.Process(chunk.NewFactory("test").Text("orphan"))
	if len(a.Messages()) != 0 {
		t.Errorf("messages = %+v", a.Messages())
	}
}

func TestErrorAppendsMessage(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	msgs := withAssistant(a)

	a.Process(f.Error("rate limited", "rate_limit"))

	if len(*msgs) != 3 {
		t.Fatalf("messages = %+v", *msgs)
	}
	last := (*msgs)[2]
	if last.Type != model.MessageError || last.Text != "rate limited" || !last.Done {
		t.Errorf("error message = %+v", last)
	}
	if a.LastError() != "rate limited" {
		t.Errorf("LastError = %q", a.LastError())
	}
}

func TestAuthRequired(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	withAssistant(a)
	a.Process(f.AuthRequired("github", chunk.AuthOpts{AuthURL: "https://auth.example", ServerID: "gh"}))

	want := AuthRequest{
		Pending:        true,
		ServerID:       "gh",
		ServerName:     "github",
		AuthURL:        "https://auth.example",
		PendingMessage: "hi",
	}
	if a.Auth() != want {
		t.Errorf("Auth = %+v, want %+v", a.Auth(), want)
	}
}

func TestImagesBuffered(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	a.Process(f.Image("part", true, nil))
	a.Process(f.Image("full", false, map[string]any{chunk.KeyMimeType: "image/png"}))

	imgs := a.Images()
	if len(imgs) != 2 || imgs[0].Type != chunk.TypeImagePartial || imgs[1].Text != "full" {
		t.Errorf("images = %+v", imgs)
	}
}

func TestCompletionStoresStatistics(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	a.Process(f.Thinking("x", chunk.ThinkingOpts{}))

	stats := chunk.NewStatistics("m", "test")
	stats.SetUsage(5, 7)
	a.Process(f.Completion("", stats))
	stats.SetUsage(100, 100)

	if a.ShowThinking() {
		t.Error("completion should hide thinking")
	}
	got := a.Statistics()
	if got == nil || got.InputTokens != 5 || got.OutputTokens != 7 {
		t.Errorf("Statistics = %+v", got)
	}
}

func TestUnhandledChunkTypeWarns(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := New(WithLogger(zap.New(core)))

	a.Process(chunk.Chunk{Type: chunk.Type("BOGUS")})
	a.Process(chunk.NewFactory("test").Annotation("cite", map[string]any{chunk.KeyURL: "https://a.example"}))

	if logs.FilterMessage("Unhandled chunk type").Len() != 1 {
		t.Errorf("logs = %v", logs.All())
	}
	warn := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warn) != 1 || warn[0].ContextMap()["type"] != "BOGUS" {
		t.Errorf("warnings = %v", warn)
	}
}

func TestReset(t *testing.T) {
	f := chunk.NewFactory("test")
	a := New()
	msgs := withAssistant(a)
	a.Process(f.Thinking("x", chunk.ThinkingOpts{}))
	a.Process(f.ToolCall("", chunk.ToolCallOpts{ToolName: "s", ToolID: "t1"}))
	a.Process(f.Error("bad", ""))

	a.Reset()

	if len(a.Thinking()) != 0 || a.ReasoningSession() != "" || a.ToolSession() != "" ||
		a.CurrentActivity() != "" || a.LastError() != "" || a.ShowThinking() {
		t.Errorf("state survived Reset")
	}
	if len(*msgs) != 3 || len(a.Messages()) != 3 {
		t.Errorf("Reset should keep the attached messages")
	}
}

func TestCancelledReplayStopsAccumulation(t *testing.T) {
	f := chunk.NewFactory("replay")
	var recorded []chunk.Chunk
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		recorded = append(recorded, f.TextDelta(s))
	}
	p := llm.NewReplayProcessor("replay", []model.AIModel{{ID: "m"}}, recorded, 0, nil)

	for k := 1; k < len(recorded); k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			a := New()
			msgs := withAssistant(a)
			token := llm.NewCancellationToken()

			seq, err := p.Process(context.Background(), llm.Request{ModelID: "m", Cancel: token})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			n := 0
			for c, err := range seq {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				a.Process(c)
				n++
				if n == k {
					token.Cancel()
				}
			}
			if n != k {
				t.Errorf("received %d chunks, want %d", n, k)
			}
			want := ""
			for _, c := range recorded[:k] {
				want += c.Text
			}
			if got := (*msgs)[1].Text; got != want {
				t.Errorf("assistant text = %q, want %q", got, want)
			}
		})
	}
}
