// Security tests for processors to ensure vendor failures don't leak API keys.
package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

const unauthorizedBody = `{"error":{"code":401,"message":"invalid api key","status":"UNAUTHENTICATED","type":"authentication_error"}}`

// headerLog keeps the headers of the last request a test server saw.
type headerLog struct {
	mu     sync.Mutex
	header http.Header
}

func (h *headerLog) set(header http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header = header.Clone()
}

func (h *headerLog) Get(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header.Get(key)
}

// unauthorizedServer answers every request with 401 and records the last request headers.
func unauthorizedServer(t *testing.T) (*httptest.Server, *headerLog) {
	t.Helper()
	seen := &headerLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.set(r.Header)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(unauthorizedBody))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func humanTurn(text string) []model.Message {
	return []model.Message{model.NewMessage(model.MessageHuman, text)}
}

// assertNoLeak checks chunk texts, metadata and err for the key and auth header names.
func assertNoLeak(t *testing.T, key string, chunks []chunk.Chunk, err error, headers ...string) {
	t.Helper()
	var parts []string
	if err != nil {
		parts = append(parts, err.Error())
	}
	for _, c := range chunks {
		parts = append(parts, c.Text)
		for _, v := range c.Metadata {
			parts = append(parts, v)
		}
	}
	all := strings.Join(parts, "\n")
	if strings.Contains(all, key) {
		t.Errorf("output leaked API key: %s", all)
	}
	for _, h := range headers {
		if strings.Contains(all, h) {
			t.Errorf("output exposed %s header: %s", h, all)
		}
	}
}

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI failures don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	srv, seen := unauthorizedServer(t)
	testKey := "sk-test-invalid-key-12345xyz"
	p := NewOpenAIProcessor("openai", testKey, srv.URL+"/v1", OpenAIModels(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := p.Process(ctx, Request{Messages: humanTurn("test"), ModelID: "gpt-5-mini"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	chunks, err := collect(seq)
	if err == nil {
		t.Fatal("expected an error from a 401 response")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if !perr.IsAuth() {
		t.Errorf("expected auth failure, got %v", perr)
	}
	if got := seen.Get("Authorization"); got != "Bearer "+testKey {
		t.Errorf("Authorization header = %q", got)
	}
	assertNoLeak(t, testKey, chunks, err, "Authorization:")
}

// TestClaudeErrorNoAPIKeyLeak verifies Claude failures don't contain API keys
func TestClaudeErrorNoAPIKeyLeak(t *testing.T) {
	srv, seen := unauthorizedServer(t)
	testKey := "sk-ant-REDACTED"
	p := NewClaudeProcessor("claude", testKey, srv.URL, ClaudeModels(), 100, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := p.Process(ctx, Request{Messages: humanTurn("test"), ModelID: "claude-haiku-4.5"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	chunks, err := collect(seq)
	if err != nil {
		t.Fatalf("Claude failures should arrive as chunks, got %v", err)
	}
	if len(chunks) != 1 || chunks[0].Type != chunk.TypeError {
		t.Fatalf("expected one error chunk, got %+v", chunks)
	}
	if chunks[0].Meta(chunk.KeyErrorType) != "auth" {
		t.Errorf("error_type = %q, want auth", chunks[0].Meta(chunk.KeyErrorType))
	}
	if got := seen.Get("X-Api-Key"); got != testKey {
		t.Errorf("x-api-key header = %q", got)
	}
	assertNoLeak(t, testKey, chunks, err, "x-api-key:", "X-Api-Key:")
}

// TestClaudeAuthFailureRequestsServerAuth verifies auth failures prompt for MCP server credentials
func TestClaudeAuthFailureRequestsServerAuth(t *testing.T) {
	srv, _ := unauthorizedServer(t)
	p := NewClaudeProcessor("claude", "sk-ant-test", srv.URL, ClaudeModels(), 100, 0, nil)

	servers := []model.MCPServer{
		{ID: "srv-1", Name: "github", URL: "https://mcp.example.com/github", AuthType: "oauth"},
		{ID: "srv-2", Name: "docs", URL: "https://mcp.example.com/docs"},
	}
	seq, err := p.Process(context.Background(), Request{
		Messages:   humanTurn("test"),
		ModelID:    "claude-haiku-4.5",
		MCPServers: servers,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	chunks, err := collect(seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Type != chunk.TypeAuthRequired {
		t.Fatalf("expected one auth_required chunk, got %+v", chunks)
	}
	c := chunks[0]
	if c.Meta(chunk.KeyServerName) != "github" || c.Meta(chunk.KeyServerID) != "srv-1" {
		t.Errorf("unexpected server metadata: %v", c.Metadata)
	}
	if c.Meta(chunk.KeyAuthURL) != "https://mcp.example.com/github" {
		t.Errorf("auth_url = %q", c.Meta(chunk.KeyAuthURL))
	}
}

// TestGeminiErrorNoAPIKeyLeak verifies Gemini failures don't contain API keys
func TestGeminiErrorNoAPIKeyLeak(t *testing.T) {
	srv, _ := unauthorizedServer(t)
	testKey := "test-invalid-key-12345xyz"
	p := NewGeminiProcessor("gemini", testKey, srv.URL, GeminiModels(), 100, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq, err := p.Process(ctx, Request{Messages: humanTurn("test"), ModelID: "gemini-3-flash-preview"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	chunks, err := collect(seq)
	if err != nil {
		t.Fatalf("Gemini failures should arrive as chunks, got %v", err)
	}
	if len(chunks) != 1 || chunks[0].Type != chunk.TypeError {
		t.Fatalf("expected one error chunk, got %+v", chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "Error: ") {
		t.Errorf("error text = %q", chunks[0].Text)
	}
	// Gemini uses x-goog-api-key header
	assertNoLeak(t, testKey, chunks, err, "x-goog-api-key:")
}

// TestProcessorWithoutKeyServesNoModels verifies keyless vendor processors stay unusable
func TestProcessorWithoutKeyServesNoModels(t *testing.T) {
	processors := []Processor{
		NewOpenAIProcessor("openai", "", "", OpenAIModels(), nil),
		NewPerplexityProcessor("perplexity", "", "", nil, nil),
		NewClaudeProcessor("claude", "", "", nil, 0, 0, nil),
		NewGeminiProcessor("gemini", "", "", nil, 0, nil),
	}
	for _, p := range processors {
		t.Run(p.Name(), func(t *testing.T) {
			if n := len(p.SupportedModels()); n != 0 {
				t.Errorf("expected no models, got %d", n)
			}
			_, err := p.Process(context.Background(), Request{Messages: humanTurn("hi"), ModelID: "anything"})
			if !errors.Is(err, ErrProcessorNotConfigured) {
				t.Errorf("expected ErrProcessorNotConfigured, got %v", err)
			}
		})
	}
}
