// Perplexity processor: OpenAI-compatible chat completions with web search.
//
// Information Hiding:
// - Perplexity endpoint and search options payload
// - Citation capture and translation into annotation chunks

package llm

import (
	"context"
	"encoding/json"
	"iter"
	"maps"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

// PerplexityBaseURL is the Perplexity API endpoint.
const PerplexityBaseURL = "https://api.perplexity.ai"

// Search context sizes.
const (
	ContextSizeLow    = "low"
	ContextSizeMedium = "medium"
	ContextSizeHigh   = "high"
)

// PerplexityProcessor implements Processor for Perplexity sonar models.
type PerplexityProcessor struct {
	OpenAIProcessor
}

// NewPerplexityProcessor creates a Perplexity processor. An empty baseURL uses PerplexityBaseURL.
func NewPerplexityProcessor(name, apiKey, baseURL string, models []model.AIModel, logger *zap.Logger) *PerplexityProcessor {
	if name == "" {
		name = "perplexity"
	}
	if baseURL == "" {
		baseURL = PerplexityBaseURL
	}
	if len(models) == 0 {
		models = PerplexityModels()
	}
	for i := range models {
		if models[i].SearchContextSize == "" {
			models[i].SearchContextSize = ContextSizeMedium
		}
	}
	return &PerplexityProcessor{OpenAIProcessor: *NewOpenAIProcessor(name, apiKey, baseURL, models, logger)}
}

// Process streams the answer, then the citations: one empty text chunk carrying
// them as JSON followed by one annotation per URL.
func (p *PerplexityProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	m, err := p.Validate(req.ModelID)
	if err != nil {
		p.logger.Error("Model not supported by Perplexity processor", zap.String("model", req.ModelID))
		return nil, err
	}
	if len(req.MCPServers) > 0 {
		p.logger.Warn("MCP servers provided to Perplexity processor but not supported")
	}
	messages := convertToOpenAIMessages(req.Messages)
	payload := perplexityPayload(m, req.Payload)

	return p.stream(req.Cancel, func(e *emitter) {
		stats := p.NewStatistics(m.ID)
		citations, ok := p.complete(withExtraBody(ctx, payload), e, m, messages, stats)
		if !ok {
			return
		}
		for _, c := range p.citationChunks(citations) {
			if !e.emit(c) {
				return
			}
		}
		e.emit(p.chunks.Completion("", stats))
	}), nil
}

func perplexityPayload(m model.AIModel, extra map[string]any) map[string]any {
	filter := m.SearchDomainFilter
	if filter == nil {
		filter = []string{}
	}
	payload := map[string]any{
		"search_domain_filter":     filter,
		"return_images":            true,
		"return_related_questions": true,
		"web_search_options": map[string]any{
			"search_context_size": m.SearchContextSize,
		},
	}
	maps.Copy(payload, extra)
	return payload
}

func (p *PerplexityProcessor) citationChunks(citations []string) []chunk.Chunk {
	if len(citations) == 0 {
		return nil
	}
	p.logger.Debug("Processing citations", zap.Int("count", len(citations)))

	type citation struct {
		URL           string `json:"url"`
		DocumentTitle string `json:"document_title"`
	}
	data := make([]citation, len(citations))
	for i, url := range citations {
		data[i] = citation{URL: url, DocumentTitle: url}
	}
	encoded, _ := json.Marshal(data)

	out := []chunk.Chunk{p.chunks.Create(chunk.TypeText, "", map[string]any{
		chunk.KeyCitations: string(encoded),
		chunk.KeySource:    "perplexity",
	})}
	for _, url := range citations {
		out = append(out, p.chunks.Annotation(url, map[string]any{
			chunk.KeyURL:    url,
			chunk.KeySource: "perplexity",
		}))
	}
	return out
}

// Verify PerplexityProcessor implements Processor
var _ Processor = (*PerplexityProcessor)(nil)
