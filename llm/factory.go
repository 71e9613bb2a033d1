// Processor factory - builds configured processors and registers them.
//
// Quick Start:
//
//	// Offline processor, no key required
//	p, err := llm.NewProcessor(llm.ProcessorConfig{Type: llm.ProcessorLoremIpsum})
//
//	// Vendor processor with its built-in catalog
//	p, err := llm.NewProcessor(llm.ProcessorConfig{
//	    Type:   llm.ProcessorClaude,
//	    APIKey: os.Getenv(llm.ProcessorClaude.EnvVar()),
//	})
//
//	// Everything at once into a shared registry
//	manager := llm.NewModelManager(logger)
//	names, err := llm.BuildRegistry(manager, configs, logger)

package llm

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/chatkit/model"
)

// DeepSeekBaseURL is the DeepSeek OpenAI-compatible endpoint.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// ProcessorType represents supported processor implementations.
type ProcessorType int

const (
	// ProcessorLoremIpsum is the offline placeholder processor.
	ProcessorLoremIpsum ProcessorType = iota
	// ProcessorOpenAI is the OpenAI chat completions processor.
	ProcessorOpenAI
	// ProcessorDeepSeek is the OpenAI processor pointed at DeepSeek.
	ProcessorDeepSeek
	// ProcessorPerplexity is the Perplexity sonar processor.
	ProcessorPerplexity
	// ProcessorClaude is the Anthropic Claude processor.
	ProcessorClaude
	// ProcessorGemini is the Google Gemini processor.
	ProcessorGemini
	// ProcessorReplay replays a chunk recording.
	ProcessorReplay
)

// String returns the string representation of the processor type.
func (p ProcessorType) String() string {
	switch p {
	case ProcessorLoremIpsum:
		return "lorem_ipsum"
	case ProcessorOpenAI:
		return "openai"
	case ProcessorDeepSeek:
		return "deepseek"
	case ProcessorPerplexity:
		return "perplexity"
	case ProcessorClaude:
		return "claude"
	case ProcessorGemini:
		return "gemini"
	case ProcessorReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable holding this processor's API key.
// Processors that need no key return "".
func (p ProcessorType) EnvVar() string {
	switch p {
	case ProcessorOpenAI:
		return "OPENAI_API_KEY"
	case ProcessorDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProcessorPerplexity:
		return "PERPLEXITY_API_KEY"
	case ProcessorClaude:
		return "ANTHROPIC_API_KEY"
	case ProcessorGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// RequiresKey reports whether the processor calls a vendor API.
func (p ProcessorType) RequiresKey() bool {
	return p.EnvVar() != ""
}

// ParseProcessorType parses a processor type from string (case-insensitive).
func ParseProcessorType(s string) (ProcessorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lorem_ipsum", "lorem-ipsum", "lorem":
		return ProcessorLoremIpsum, nil
	case "openai", "gpt":
		return ProcessorOpenAI, nil
	case "deepseek":
		return ProcessorDeepSeek, nil
	case "perplexity", "sonar":
		return ProcessorPerplexity, nil
	case "claude", "anthropic":
		return ProcessorClaude, nil
	case "gemini", "google":
		return ProcessorGemini, nil
	case "replay":
		return ProcessorReplay, nil
	default:
		return 0, fmt.Errorf("unknown processor type: %s", s)
	}
}

// ProcessorConfig configures one processor. Zero values select defaults:
// the type's name, its built-in catalog and its vendor endpoint.
type ProcessorConfig struct {
	Type           ProcessorType
	Name           string
	APIKey         string
	BaseURL        string
	Models         []model.AIModel
	MaxTokens      int
	ThinkingBudget int
	RecordingPath  string
	Delay          time.Duration
	Logger         *zap.Logger
}

// NewProcessor builds the processor described by cfg.
func NewProcessor(cfg ProcessorConfig) (Processor, error) {
	name := cfg.Name
	if name == "" {
		name = cfg.Type.String()
	}

	switch cfg.Type {
	case ProcessorLoremIpsum:
		return NewLoremIpsumProcessor(name, cfg.Models, cfg.Delay, 0, cfg.Logger), nil
	case ProcessorOpenAI:
		models := cfg.Models
		if len(models) == 0 {
			models = OpenAIModels()
		}
		return NewOpenAIProcessor(name, cfg.APIKey, cfg.BaseURL, models, cfg.Logger), nil
	case ProcessorDeepSeek:
		models := cfg.Models
		if len(models) == 0 {
			models = DeepSeekModels()
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DeepSeekBaseURL
		}
		return NewOpenAIProcessor(name, cfg.APIKey, baseURL, models, cfg.Logger), nil
	case ProcessorPerplexity:
		return NewPerplexityProcessor(name, cfg.APIKey, cfg.BaseURL, cfg.Models, cfg.Logger), nil
	case ProcessorClaude:
		return NewClaudeProcessor(name, cfg.APIKey, cfg.BaseURL, cfg.Models,
			int64(cfg.MaxTokens), int64(cfg.ThinkingBudget), cfg.Logger), nil
	case ProcessorGemini:
		return NewGeminiProcessor(name, cfg.APIKey, cfg.BaseURL, cfg.Models, int32(cfg.MaxTokens), cfg.Logger), nil
	case ProcessorReplay:
		if cfg.RecordingPath == "" {
			return nil, fmt.Errorf("%s: recording path not set", name)
		}
		modelID := "replay"
		if len(cfg.Models) > 0 {
			modelID = cfg.Models[0].ID
		}
		return LoadReplayProcessor(cfg.RecordingPath, modelID, cfg.Delay, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown processor type: %v", cfg.Type)
	}
}

// BuildRegistry creates every configured processor and registers it under its
// name. Vendor processors without an API key are skipped. It returns the names
// registered, in configuration order.
//
// The default becomes the first model of the first processor that is not the
// lorem ipsum placeholder. With only placeholders registered the registry's own
// fallback applies.
func BuildRegistry(manager *ModelManager, configs []ProcessorConfig, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var names []string
	defaultID := ""
	for _, cfg := range configs {
		if cfg.Type.RequiresKey() && cfg.APIKey == "" {
			logger.Info("Skipping processor without API key",
				zap.String("type", cfg.Type.String()), zap.String("env", cfg.Type.EnvVar()))
			continue
		}
		if cfg.Logger == nil {
			cfg.Logger = logger
		}
		p, err := NewProcessor(cfg)
		if err != nil {
			return names, fmt.Errorf("build %s processor: %w", cfg.Type, err)
		}
		manager.RegisterProcessor(p.Name(), p)
		names = append(names, p.Name())
		if _, placeholder := p.(*LoremIpsumProcessor); !placeholder && defaultID == "" {
			defaultID = firstModelID(p)
		}
	}
	if defaultID != "" {
		manager.SetDefaultModel(defaultID)
		logger.Debug("Default model selected", zap.String("model", defaultID))
	}
	return names, nil
}

// firstModelID returns the lowest model id p serves, matching registration order.
func firstModelID(p Processor) string {
	ids := slices.Sorted(maps.Keys(p.SupportedModels()))
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
