// OpenAI chat completions processor using go-openai.
//
// Information Hiding:
// - API endpoint and authentication
// - Conversion of conversation messages to chat completion messages
// - Streaming vs single-shot response handling
// - Usage capture for statistics

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

const chatCompletionsSource = "chat_completions"

// OpenAIProcessor implements Processor over the chat completions API.
type OpenAIProcessor struct {
	Base
	client *openai.Client
	source string
}

// NewOpenAIProcessor creates a chat completions processor. An empty baseURL uses
// the OpenAI endpoint; an empty apiKey yields a processor serving no models.
func NewOpenAIProcessor(name, apiKey, baseURL string, models []model.AIModel, logger *zap.Logger) *OpenAIProcessor {
	if name == "" {
		name = "openai"
	}
	p := &OpenAIProcessor{
		Base:   newBase(name, models, logger),
		source: chatCompletionsSource,
	}
	if apiKey == "" {
		p.disable("No API key found. Processor will not work.")
		return p
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = compatHTTPClient(nil)
	p.client = openai.NewClientWithConfig(config)
	return p
}

// Process streams one chat completion followed by a completion chunk with statistics.
// Vendor failures end the sequence with a *ProviderError.
func (p *OpenAIProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	m, err := p.Validate(req.ModelID)
	if err != nil {
		return nil, err
	}
	if len(req.MCPServers) > 0 {
		p.logger.Warn("MCP servers provided to chat completions processor but not supported",
			zap.Int("count", len(req.MCPServers)))
	}
	messages := convertToOpenAIMessages(req.Messages)

	return p.stream(req.Cancel, func(e *emitter) {
		stats := p.NewStatistics(m.ID)
		if _, ok := p.complete(withExtraBody(ctx, req.Payload), e, m, messages, stats); !ok {
			return
		}
		p.logger.Debug("Completion statistics",
			zap.Int("input_tokens", stats.InputTokens), zap.Int("output_tokens", stats.OutputTokens))
		e.emit(p.chunks.Completion("", stats))
	}), nil
}

// compatEvent is a stream event of an OpenAI-compatible vendor.
type compatEvent struct {
	openai.ChatCompletionStreamResponse
	Citations []string `json:"citations"`
}

// complete runs one request and emits its text. It returns the citations the
// vendor reported and false when the sequence already ended.
func (p *OpenAIProcessor) complete(ctx context.Context, e *emitter, m model.AIModel, messages []openai.ChatCompletionMessage, stats *chunk.Statistics) ([]string, bool) {
	request := openai.ChatCompletionRequest{
		Model:       m.Model,
		Messages:    messages,
		Temperature: float32(m.Temperature),
	}
	if !m.Stream {
		return p.completeSync(ctx, e, m, request, stats)
	}

	request.Stream = true
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		e.fail(&ProviderError{Processor: p.name, Err: fmt.Errorf("chat completion stream failed: %w", err)})
		return nil, false
	}
	defer stream.Close()

	var citations []string
	reasoning := ""
	for !e.done() {
		raw, err := stream.RecvRaw()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.fail(&ProviderError{Processor: p.name, Err: fmt.Errorf("stream error: %w", err)})
			return nil, false
		}

		var event compatEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			p.logger.Warn("Skipping malformed stream event", zap.Error(err))
			continue
		}
		if len(event.Citations) > 0 {
			citations = event.Citations
		}
		if event.Usage != nil {
			stats.SetUsage(event.Usage.PromptTokens, event.Usage.CompletionTokens)
		}
		if len(event.Choices) == 0 {
			continue
		}

		delta := event.Choices[0].Delta
		if delta.ReasoningContent != "" {
			if reasoning == "" {
				reasoning = "reasoning_" + event.ID
			}
			if !e.emit(p.chunks.Thinking(delta.ReasoningContent, chunk.ThinkingOpts{ReasoningID: reasoning, Delta: true})) {
				return nil, false
			}
		}
		if delta.Content != "" {
			if reasoning != "" {
				if !e.emit(p.chunks.ThinkingResult("", reasoning)) {
					return nil, false
				}
				reasoning = ""
			}
			if !e.emit(p.textChunk(delta.Content, m.Model, true, event.ID)) {
				return nil, false
			}
		}
	}
	if e.done() {
		return nil, false
	}
	if reasoning != "" && !e.emit(p.chunks.ThinkingResult("", reasoning)) {
		return nil, false
	}
	return citations, true
}

func (p *OpenAIProcessor) completeSync(ctx context.Context, e *emitter, m model.AIModel, request openai.ChatCompletionRequest, stats *chunk.Statistics) ([]string, bool) {
	sink := &citationSink{}
	resp, err := p.client.CreateChatCompletion(withCitationSink(ctx, sink), request)
	if err != nil {
		e.fail(&ProviderError{Processor: p.name, Err: fmt.Errorf("chat completion failed: %w", err)})
		return nil, false
	}
	stats.SetUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		if !e.emit(p.textChunk(resp.Choices[0].Message.Content, m.Model, false, resp.ID)) {
			return nil, false
		}
	}
	return sink.citations, true
}

func (p *OpenAIProcessor) textChunk(content, modelName string, streaming bool, messageID string) chunk.Chunk {
	return p.chunks.Create(chunk.TypeText, content, map[string]any{
		chunk.KeySource:    p.source,
		chunk.KeyStreaming: streaming,
		chunk.KeyModel:     modelName,
		chunk.KeyMessageID: optionalString(messageID),
	})
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// convertToOpenAIMessages maps conversation messages to chat messages. Messages
// of other types are skipped; consecutive user or assistant messages are merged.
func convertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, msg := range messages {
		var role string
		switch msg.Type {
		case model.MessageHuman:
			role = openai.ChatMessageRoleUser
		case model.MessageSystem:
			role = openai.ChatMessageRoleSystem
		case model.MessageAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		if n := len(out); n > 0 && role != openai.ChatMessageRoleSystem && out[n-1].Role == role {
			out[n-1].Content = out[n-1].Content + "\n\n" + msg.Text
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}
	return out
}

// Verify OpenAIProcessor implements Processor
var _ Processor = (*OpenAIProcessor)(nil)
