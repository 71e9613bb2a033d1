// Claude processor using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request format for the Anthropic Messages API, including extended thinking
// - Translation of stream events into chunks (block bookkeeping per index)

package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	jsonutil "github.com/richinex/chatkit/internal/json"
	"github.com/richinex/chatkit/model"
)

// Defaults for Claude requests.
const (
	DefaultClaudeMaxTokens      = 4096
	DefaultClaudeThinkingBudget = 10000
)

// ClaudeProcessor implements Processor for Anthropic Claude.
type ClaudeProcessor struct {
	Base
	client         anthropic.Client
	maxTokens      int64
	thinkingBudget int64
}

// NewClaudeProcessor creates a Claude processor. An empty baseURL uses the
// Anthropic endpoint; an empty apiKey yields a processor serving no models.
// Extended thinking is requested for models with temperature 1 when thinkingBudget > 0.
func NewClaudeProcessor(name, apiKey, baseURL string, models []model.AIModel, maxTokens, thinkingBudget int64, logger *zap.Logger) *ClaudeProcessor {
	if name == "" {
		name = "claude"
	}
	if len(models) == 0 {
		models = ClaudeModels()
	}
	if maxTokens <= 0 {
		maxTokens = DefaultClaudeMaxTokens
	}
	p := &ClaudeProcessor{
		Base:           newBase(name, models, logger),
		maxTokens:      maxTokens,
		thinkingBudget: thinkingBudget,
	}
	if apiKey == "" {
		p.disable("No Claude API key found. Processor will not work.")
		return p
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	p.client = anthropic.NewClient(opts...)
	return p
}

// Process streams one Claude response. Vendor failures become an ERROR chunk,
// or AUTH_REQUIRED chunks when they look like authentication problems.
func (p *ClaudeProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	m, err := p.Validate(req.ModelID)
	if err != nil {
		return nil, err
	}
	params := p.buildParams(m, req)

	return p.stream(req.Cancel, func(e *emitter) {
		t := newClaudeTranslator(p.chunks, p.NewStatistics(m.ID))
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for !e.done() && stream.Next() {
			for _, c := range t.translate(stream.Current()) {
				if !e.emit(c) {
					return
				}
			}
		}
		if e.done() {
			return
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				e.fail(ctx.Err())
				return
			}
			p.logger.Error("Error during Claude response processing", zap.Error(err))
			for _, c := range p.errorChunks(err, req.MCPServers) {
				if !e.emit(c) {
					return
				}
			}
		}
	}), nil
}

func (p *ClaudeProcessor) buildParams(m model.AIModel, req Request) anthropic.MessageNewParams {
	messages, systemPrompt := convertToAnthropicMessages(req.Messages)
	if prompt := mcpPrompt(req.MCPServers); prompt != "" {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\n" + prompt)
	}

	maxTokens := p.maxTokens
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.Model),
		Messages:    messages,
		Temperature: anthropic.Float(m.Temperature),
	}
	if p.thinkingBudget > 0 && m.Temperature == 1 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(p.thinkingBudget)
		maxTokens += p.thinkingBudget
	}
	params.MaxTokens = maxTokens
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// errorChunks converts a stream failure into chunks.
func (p *ClaudeProcessor) errorChunks(err error, servers []model.MCPServer) []chunk.Chunk {
	if !IsAuthError(err) {
		return []chunk.Chunk{p.chunks.Create(chunk.TypeError, fmt.Sprintf("An error occurred: %v", err), map[string]any{
			chunk.KeySource:    "claude_api",
			chunk.KeyErrorType: fmt.Sprintf("%T", err),
		})}
	}

	var out []chunk.Chunk
	for _, s := range servers {
		if s.AuthType == "" {
			continue
		}
		out = append(out, p.chunks.AuthRequired(s.Name, chunk.AuthOpts{AuthURL: s.URL, ServerID: s.ID}))
	}
	if len(out) == 0 {
		out = append(out, p.chunks.Error(fmt.Sprintf("Authentication failed: %v", err), "auth"))
	}
	return out
}

// claudeBlock is one open content block of the stream.
type claudeBlock struct {
	kind     string
	id       string
	toolName string
	args     strings.Builder
}

// claudeTranslator turns stream events into chunks. It keeps per-index block
// state so content_block_stop can close the right kind of block.
type claudeTranslator struct {
	chunks        *chunk.Factory
	stats         *chunk.Statistics
	blocks        map[int64]*claudeBlock
	reasoning     string
	needSeparator bool
}

func newClaudeTranslator(chunks *chunk.Factory, stats *chunk.Statistics) *claudeTranslator {
	return &claudeTranslator{
		chunks: chunks,
		stats:  stats,
		blocks: make(map[int64]*claudeBlock),
	}
}

func (t *claudeTranslator) translate(event anthropic.MessageStreamEventUnion) []chunk.Chunk {
	switch event.Type {
	case "message_start":
		t.stats.SetUsage(int(event.Message.Usage.InputTokens), int(event.Message.Usage.OutputTokens))
		return []chunk.Chunk{t.chunks.Lifecycle("created", nil)}

	case "message_delta":
		if event.Usage.InputTokens > 0 {
			t.stats.SetUsage(int(event.Usage.InputTokens), -1)
		}
		t.stats.SetUsage(-1, int(event.Usage.OutputTokens))
		if reason := string(event.Delta.StopReason); reason != "" {
			return []chunk.Chunk{t.chunks.Create(chunk.TypeLifecycle, "stop_reason: "+reason, map[string]any{
				chunk.KeyStage:      "message_delta",
				chunk.KeyStopReason: reason,
			})}
		}

	case "message_stop":
		return []chunk.Chunk{t.chunks.Completion("", t.stats)}

	case "content_block_start":
		return t.blockStart(event.Index, event.ContentBlock)

	case "content_block_delta":
		return t.blockDelta(event.Index, event.Delta)

	case "content_block_stop":
		return t.blockStop(event.Index)
	}
	return nil
}

func (t *claudeTranslator) blockStart(index int64, block anthropic.ContentBlockStartEventContentBlockUnion) []chunk.Chunk {
	switch block.Type {
	case "text":
		t.blocks[index] = &claudeBlock{kind: "text"}
		if t.needSeparator {
			t.needSeparator = false
			return []chunk.Chunk{t.chunks.Create(chunk.TypeText, "\n\n", map[string]any{chunk.KeySeparator: true})}
		}

	case "thinking", "redacted_thinking":
		id := fmt.Sprintf("thinking_%d", index)
		t.blocks[index] = &claudeBlock{kind: "thinking", id: id}
		t.reasoning = id
		t.needSeparator = true
		return []chunk.Chunk{t.chunks.Thinking("", chunk.ThinkingOpts{ReasoningID: id, Status: chunk.StatusStarting})}

	case "tool_use", "server_tool_use":
		t.blocks[index] = &claudeBlock{kind: "tool", id: block.ID, toolName: block.Name}
		t.needSeparator = true
		t.stats.AddToolUse(block.Name, "")
		return []chunk.Chunk{t.chunks.ToolCall("", chunk.ToolCallOpts{
			ToolName:         block.Name,
			ToolID:           block.ID,
			Status:           chunk.StatusStarting,
			ReasoningSession: t.reasoning,
			Description:      "Using tool: " + block.Name,
		})}

	case "web_search_tool_result":
		t.needSeparator = true
		isError := block.Content.ErrorCode != ""
		text := string(block.Content.ErrorCode)
		if !isError {
			titles := make([]string, 0, len(block.Content.OfWebSearchResultBlockArray))
			for _, r := range block.Content.OfWebSearchResultBlockArray {
				titles = append(titles, fmt.Sprintf("%s (%s)", r.Title, r.URL))
			}
			text = strings.Join(titles, "\n")
			if text == "" {
				text = "No results"
			}
		}
		return []chunk.Chunk{t.chunks.ToolResult(text, block.ToolUseID, chunk.ToolResultOpts{
			IsError:          isError,
			ReasoningSession: t.reasoning,
		})}
	}
	return nil
}

func (t *claudeTranslator) blockDelta(index int64, delta anthropic.MessageStreamEventUnionDelta) []chunk.Chunk {
	switch delta.Type {
	case "text_delta":
		return []chunk.Chunk{t.chunks.TextDelta(delta.Text)}

	case "thinking_delta":
		id := t.reasoning
		if b, ok := t.blocks[index]; ok && b.kind == "thinking" {
			id = b.id
		}
		return []chunk.Chunk{t.chunks.Thinking(delta.Thinking, chunk.ThinkingOpts{ReasoningID: id, Delta: true})}

	case "input_json_delta":
		b, ok := t.blocks[index]
		if !ok || b.kind != "tool" {
			return nil
		}
		b.args.WriteString(delta.PartialJSON)
		return []chunk.Chunk{t.chunks.ToolCall(delta.PartialJSON, chunk.ToolCallOpts{
			ToolName:         b.toolName,
			ToolID:           b.id,
			Status:           chunk.StatusArgumentsStreaming,
			ReasoningSession: t.reasoning,
			Parameters:       b.args.String(),
			Description:      "Using tool: " + b.toolName,
		})}

	case "citations_delta":
		c := delta.Citation
		if c.URL == "" {
			return nil
		}
		return []chunk.Chunk{t.chunks.Annotation(c.URL, map[string]any{
			chunk.KeyURL:    c.URL,
			"title":         optionalString(c.Title),
			"cited_text":    optionalString(c.CitedText),
			chunk.KeySource: "claude",
		})}
	}
	return nil
}

func (t *claudeTranslator) blockStop(index int64) []chunk.Chunk {
	b, ok := t.blocks[index]
	if !ok {
		return nil
	}
	delete(t.blocks, index)

	switch b.kind {
	case "thinking":
		if t.reasoning == b.id {
			t.reasoning = ""
		}
		return []chunk.Chunk{t.chunks.ThinkingResult("done", b.id)}
	case "tool":
		return []chunk.Chunk{t.chunks.ToolCall("", chunk.ToolCallOpts{
			ToolName:    b.toolName,
			ToolID:      b.id,
			Status:      chunk.StatusArgumentsComplete,
			Parameters:  jsonutil.RepairPartial(b.args.String()),
			Description: "Using tool: " + b.toolName,
		})}
	}
	return nil
}

// convertToAnthropicMessages converts conversation messages to Anthropic format.
// System messages are returned separately; consecutive same-role messages are merged.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system []string
	var lastRole anthropic.MessageParamRole
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if lastRole == anthropic.MessageParamRoleUser {
			out = append(out, anthropic.NewUserMessage(block))
		} else {
			out = append(out, anthropic.NewAssistantMessage(block))
		}
		pending = nil
	}

	for _, msg := range messages {
		var role anthropic.MessageParamRole
		switch msg.Type {
		case model.MessageSystem:
			system = append(system, msg.Text)
			continue
		case model.MessageHuman:
			role = anthropic.MessageParamRoleUser
		case model.MessageAssistant:
			role = anthropic.MessageParamRoleAssistant
		default:
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if role != lastRole {
			flush()
			lastRole = role
		}
		pending = append(pending, msg.Text)
	}
	flush()

	return out, strings.Join(system, "\n\n")
}

// mcpPrompt joins the usage prompts of the configured tool servers.
func mcpPrompt(servers []model.MCPServer) string {
	var parts []string
	for _, s := range servers {
		if s.Prompt != "" {
			parts = append(parts, fmt.Sprintf("### %s\n%s", s.Name, s.Prompt))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Verify ClaudeProcessor implements Processor
var _ Processor = (*ClaudeProcessor)(nil)
