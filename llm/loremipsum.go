// Offline processor producing placeholder text.
//
// Information Hiding:
// - Word source and pacing of the generated stream
// - Shape of the simulated reasoning trace

package llm

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

const loremText = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor " +
	"incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation " +
	"ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit " +
	"in voluptate velit esse cillum dolore eu fugiat nulla pariatur."

// LoremIpsumModel is the model served by the lorem ipsum processor.
var LoremIpsumModel = model.AIModel{
	ID:       "lorem-ipsum",
	Text:     "Lorem Ipsum",
	Icon:     "codesandbox",
	Model:    "lorem-ipsum",
	Stream:   true,
	Keywords: []string{"offline", "test"},
}

// LoremIpsumProcessor streams lorem ipsum without calling any vendor.
type LoremIpsumProcessor struct {
	Base
	delay time.Duration
	words int
}

// NewLoremIpsumProcessor creates the offline processor. delay paces each word; words caps the output (0 = all).
func NewLoremIpsumProcessor(name string, models []model.AIModel, delay time.Duration, words int, logger *zap.Logger) *LoremIpsumProcessor {
	if name == "" {
		name = "lorem_ipsum"
	}
	if len(models) == 0 {
		models = []model.AIModel{LoremIpsumModel}
	}
	return &LoremIpsumProcessor{
		Base:  newBase(name, models, logger),
		delay: delay,
		words: words,
	}
}

// Process streams a short reasoning trace followed by the text word by word.
func (p *LoremIpsumProcessor) Process(ctx context.Context, req Request) (iter.Seq2[chunk.Chunk, error], error) {
	m, err := p.Validate(req.ModelID)
	if err != nil {
		return nil, err
	}
	if len(req.MCPServers) > 0 {
		p.logger.Warn("MCP servers provided but not supported", zap.Int("count", len(req.MCPServers)))
	}

	words := strings.Fields(loremText)
	if p.words > 0 && p.words < len(words) {
		words = words[:p.words]
	}

	return p.stream(req.Cancel, func(e *emitter) {
		stats := p.NewStatistics(m.ID)
		stats.SetUsage(promptLength(req.Messages), len(words))

		if !e.emit(p.chunks.Thinking("Preparing placeholder text.", chunk.ThinkingOpts{})) {
			return
		}
		if !e.emit(p.chunks.ThinkingResult("done", "")) {
			return
		}
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if !p.wait(ctx, req.Cancel) {
				if err := ctx.Err(); err != nil {
					e.fail(err)
				}
				return
			}
			if !e.emit(p.chunks.TextDelta(w)) {
				return
			}
		}
		e.emit(p.chunks.Completion("", stats))
	}), nil
}

// wait sleeps for the configured delay and reports false when interrupted.
func (p *LoremIpsumProcessor) wait(ctx context.Context, token *CancellationToken) bool {
	if p.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-token.Done():
		return false
	}
}

// promptLength approximates input tokens as whitespace-separated words.
func promptLength(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Text))
	}
	return n
}

// Verify LoremIpsumProcessor implements Processor
var _ Processor = (*LoremIpsumProcessor)(nil)
