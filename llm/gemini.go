// Gemini processor using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request format for Gemini API (system instruction via config, thinking config)
// - Translation of streamed responses into chunks
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/richinex/chatkit/chunk"
	jsonutil "github.com/richinex/chatkit/internal/json"
	"github.com/richinex/chatkit/model"
)

// GeminiProcessor implements Processor for Google Gemini.
type GeminiProcessor struct {
	Base
	client    *genai.Client
	maxTokens int32
	initErr   error // Stores client initialization error for deferred reporting
}

// NewGeminiProcessor creates a Gemini processor.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProcessor(name, apiKey, baseURL string, models []model.AIModel, maxTokens int32, logger *zap.Logger) *GeminiProcessor {
	if name == "" {
		name = "gemini"
	}
	if len(models) == 0 {
		models = GeminiModels()
	}
	p := &GeminiProcessor{Base: newBase(name, models, logger), maxTokens: maxTokens}
	if apiKey == "" {
		p.disable("No Gemini API key found. Processor will not work.")
		return p
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Process streams one Gemini response. Vendor failures become an ERROR chunk.
func (p *GeminiProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	m, err := p.Validate(req.ModelID)
	if err != nil {
		return nil, err
	}
	if p.initErr != nil {
		return nil, p.initErr
	}

	contents, systemInstruction := convertToGeminiMessages(req.Messages)
	if prompt := mcpPrompt(req.MCPServers); prompt != "" {
		systemInstruction = strings.TrimSpace(systemInstruction + "\n\n" + prompt)
	}
	config := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(float32(m.Temperature)),
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if p.maxTokens > 0 {
		config.MaxOutputTokens = p.maxTokens
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	return p.stream(req.Cancel, func(e *emitter) {
		t := newGeminiTranslator(p.chunks, p.NewStatistics(m.ID))
		// GenerateContentStream returns iter.Seq2[*GenerateContentResponse, error]
		for response, err := range p.client.Models.GenerateContentStream(ctx, m.Model, contents, config) {
			if e.done() {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					e.fail(ctx.Err())
					return
				}
				p.logger.Error("Error in Gemini processor", zap.Error(err))
				e.emit(p.chunks.Error(fmt.Sprintf("Error: %v", err), "gemini_api"))
				return
			}
			for _, c := range t.translate(response) {
				if !e.emit(c) {
					return
				}
			}
		}
		for _, c := range t.finish() {
			if !e.emit(c) {
				return
			}
		}
	}), nil
}

// geminiTranslator turns streamed responses into chunks. Thought parts form
// one reasoning session that closes when answer text starts.
type geminiTranslator struct {
	chunks    *chunk.Factory
	stats     *chunk.Statistics
	reasoning string
	sessions  int
	toolCalls int
	sources   map[string]bool
}

func newGeminiTranslator(chunks *chunk.Factory, stats *chunk.Statistics) *geminiTranslator {
	return &geminiTranslator{chunks: chunks, stats: stats, sources: make(map[string]bool)}
}

func (t *geminiTranslator) translate(response *genai.GenerateContentResponse) []chunk.Chunk {
	if response == nil {
		return nil
	}
	if u := response.UsageMetadata; u != nil {
		t.stats.SetUsage(int(u.PromptTokenCount), int(u.CandidatesTokenCount+u.ThoughtsTokenCount))
	}
	if len(response.Candidates) == 0 || response.Candidates[0] == nil {
		return nil
	}

	candidate := response.Candidates[0]
	var out []chunk.Chunk
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			out = append(out, t.part(part)...)
		}
	}
	if gm := candidate.GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if gc == nil || gc.Web == nil || gc.Web.URI == "" || t.sources[gc.Web.URI] {
				continue
			}
			t.sources[gc.Web.URI] = true
			out = append(out, t.chunks.Annotation(gc.Web.URI, map[string]any{
				chunk.KeyURL:    gc.Web.URI,
				"title":         optionalString(gc.Web.Title),
				chunk.KeySource: "gemini",
			}))
		}
	}
	return out
}

func (t *geminiTranslator) part(part *genai.Part) []chunk.Chunk {
	if part == nil {
		return nil
	}
	switch {
	case part.Thought && part.Text != "":
		if t.reasoning == "" {
			t.sessions++
			t.reasoning = fmt.Sprintf("gemini_thought_%d", t.sessions)
		}
		return []chunk.Chunk{t.chunks.Thinking(part.Text, chunk.ThinkingOpts{ReasoningID: t.reasoning, Delta: true})}

	case part.FunctionCall != nil:
		out := t.closeReasoning()
		fc := part.FunctionCall
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("gemini_call_%d", t.toolCalls)
		}
		t.toolCalls++
		t.stats.AddToolUse(fc.Name, "")
		return append(out, t.chunks.ToolCall("", chunk.ToolCallOpts{
			ToolName:    fc.Name,
			ToolID:      id,
			Parameters:  jsonutil.Compact(fc.Args),
			Description: "Using tool: " + fc.Name,
		}))

	case part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/"):
		return []chunk.Chunk{t.chunks.Image(base64.StdEncoding.EncodeToString(part.InlineData.Data), false, map[string]any{
			chunk.KeyMimeType: part.InlineData.MIMEType,
		})}

	case part.Text != "":
		out := t.closeReasoning()
		return append(out, t.chunks.TextDelta(part.Text))
	}
	return nil
}

func (t *geminiTranslator) closeReasoning() []chunk.Chunk {
	if t.reasoning == "" {
		return nil
	}
	id := t.reasoning
	t.reasoning = ""
	return []chunk.Chunk{t.chunks.ThinkingResult("", id)}
}

// finish closes an open reasoning session and emits the completion.
func (t *geminiTranslator) finish() []chunk.Chunk {
	return append(t.closeReasoning(), t.chunks.Completion("", t.stats))
}

// convertToGeminiMessages converts conversation messages to Gemini format.
// Extracts system messages and returns them separately.
func convertToGeminiMessages(messages []model.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		switch msg.Type {
		case model.MessageSystem:
			system = append(system, msg.Text)
		case model.MessageHuman:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		case model.MessageAssistant:
			if msg.Text != "" {
				contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
			}
		}
	}

	return contents, strings.Join(system, "\n\n")
}

// Verify GeminiProcessor implements Processor
var _ Processor = (*GeminiProcessor)(nil)
