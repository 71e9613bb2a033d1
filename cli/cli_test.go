package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/llm"
	"github.com/richinex/chatkit/logging"
	"github.com/richinex/chatkit/model"
	"github.com/richinex/chatkit/storage"
	"github.com/richinex/chatkit/thread"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := logging.Nop()
	manager := llm.NewModelManager(logger)
	p := llm.NewLoremIpsumProcessor("", nil, 0, 3, logger)
	manager.RegisterProcessor(p.Name(), p)
	store := storage.NewInMemoryStorage()
	return &Runtime{
		Logger:  logger,
		Manager: manager,
		Store:   store,
		Service: thread.NewService(manager, store, logger),
	}
}

func TestAskRendersTurn(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := Ask(ctx, rt, AskRequest{Prompt: "hello"}, &out); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(out.String(), "Lorem ipsum dolor") {
		t.Errorf("output = %q", out.String())
	}

	threads, err := rt.Store.List(ctx)
	if err != nil || len(threads) != 1 {
		t.Fatalf("threads = %+v, %v", threads, err)
	}
	if threads[0].Title != "hello" || threads[0].MessageCount != 2 {
		t.Errorf("thread = %+v", threads[0])
	}
}

func TestAskRecordThenReplay(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "turn.rec")

	var out bytes.Buffer
	if err := Ask(ctx, rt, AskRequest{Prompt: "record me", RecordPath: path}, &out); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	var replayed bytes.Buffer
	if err := Replay(ctx, path, 0, true, nil, &replayed); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	got := replayed.String()
	if !strings.Contains(got, "Lorem ipsum dolor") {
		t.Errorf("replay output = %q", got)
	}
	if !strings.Contains(got, "reasoning") {
		t.Errorf("replay with thinking should render reasoning items: %q", got)
	}
}

func TestChatCommands(t *testing.T) {
	rt := newTestRuntime(t)
	in := strings.NewReader(strings.Join([]string{
		"/models",
		"/model lor",
		"hi there",
		"/threads",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n"))

	var out bytes.Buffer
	if err := Chat(context.Background(), rt, "", in, &out); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"lorem-ipsum",
		"Model set to lorem-ipsum",
		"Lorem ipsum dolor",
		"hi there",
		"unknown command /bogus",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	threads, _ := rt.Store.List(context.Background())
	if len(threads) != 1 {
		t.Errorf("threads = %+v, want one", threads)
	}
}

func TestChatResumesThread(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := Ask(ctx, rt, AskRequest{Prompt: "first"}, &out); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	threads, _ := rt.Store.List(ctx)
	id := threads[0].ThreadID

	out.Reset()
	if err := Chat(ctx, rt, id, strings.NewReader("second\n"), &out); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(out.String(), "Resuming thread 'first' (2 messages)") {
		t.Errorf("output = %q", out.String())
	}
	th, err := rt.Store.Load(ctx, id)
	if err != nil || len(th.Messages) != 4 {
		t.Errorf("thread = %+v, %v", th, err)
	}
}

func TestModelPrefixErrors(t *testing.T) {
	rt := newTestRuntime(t)
	threadID := ""

	var out bytes.Buffer
	if _, err := chatCommand(context.Background(), rt, "/model gpt", &threadID, &out); err == nil {
		t.Error("expected error for unknown model prefix")
	}
	if rt.Options.Model != "" {
		t.Errorf("model changed to %q", rt.Options.Model)
	}
}

func TestRenderThinking(t *testing.T) {
	items := []model.Thinking{
		{Type: model.ThinkingReasoning, ID: "r1", Text: "step one", Status: model.ThinkingCompleted},
		{
			Type:       model.ThinkingToolCall,
			ID:         "t1",
			ToolName:   "search",
			Status:     model.ThinkingError,
			Parameters: `{"q":"go"}`,
			Error:      "rate limited",
		},
	}
	got := RenderThinking(items)
	for _, want := range []string{"step one", "search", `"q": "go"`, "rate limited", "error"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q:\n%s", want, got)
		}
	}
}

func TestRenderStatistics(t *testing.T) {
	stats := chunk.NewStatistics("gpt-4o", "openai")
	stats.InputTokens = 12
	stats.OutputTokens = 34
	stats.ToolUses["web_search"] = 2

	got := RenderStatistics(stats)
	for _, want := range []string{"gpt-4o via openai", "in 12", "out 34", "web_search x2"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q: %s", want, got)
		}
	}
}

func TestRenderThreadsEmpty(t *testing.T) {
	if got := RenderThreads(nil); !strings.Contains(got, "No threads stored.") {
		t.Errorf("got %q", got)
	}
}

func TestSetupFromEnvironment(t *testing.T) {
	for _, env := range []string{
		"OPENAI_API_KEY", "DEEPSEEK_API_KEY", "PERPLEXITY_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"CHATKIT_DEFAULT_MODEL", "CHATKIT_MODELS_FILE", "CHATKIT_MCP_FILE",
	} {
		t.Setenv(env, "")
	}
	t.Setenv("CHATKIT_LOG_LEVEL", "error")
	t.Setenv("CHATKIT_DB_PATH", filepath.Join(t.TempDir(), "nested", "chat.db"))

	rt, err := Setup(Options{Model: "lorem"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer rt.Close()

	if got := rt.Manager.DefaultModel(); got != llm.LoremIpsumModel.ID {
		t.Errorf("DefaultModel = %q", got)
	}
	if rt.Options.Model != llm.LoremIpsumModel.ID {
		t.Errorf("Options.Model = %q, want resolved id", rt.Options.Model)
	}
	if len(rt.Manager.ProcessorNames()) != 1 {
		t.Errorf("processors = %v, want only the keyless one", rt.Manager.ProcessorNames())
	}

	var out bytes.Buffer
	if err := ProbeServers(context.Background(), rt, &out); err != nil {
		t.Errorf("ProbeServers: %v", err)
	}
	if !strings.Contains(out.String(), "No MCP servers configured") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSetupUnknownModel(t *testing.T) {
	t.Setenv("CHATKIT_MODELS_FILE", "")
	t.Setenv("CHATKIT_DB_PATH", ":memory:")
	if _, err := Setup(Options{Model: "no-such-model"}); err == nil {
		t.Error("expected error for unknown model")
	}
}
