package llm

import "github.com/richinex/chatkit/model"

// Roles gating access to model tiers.
const (
	RoleBasicModels      = "assistant-basic-models"
	RoleAdvancedModels   = "assistant-advanced-models"
	RolePerplexityModels = "assistant-perplexity-models"
)

// OpenAIModels returns the built-in OpenAI catalog.
func OpenAIModels() []model.AIModel {
	return []model.AIModel{
		{ID: "o3", Text: "o3 Reasoning", Icon: "openai", Model: "o3", Temperature: 1, Stream: true,
			SupportsTools: true, Keywords: []string{"reasoning", "o3"}, RequiresRole: RoleAdvancedModels},
		{ID: "gpt-5-mini", Text: "GPT 5 Mini", Icon: "openai", Model: "gpt-5-mini", Temperature: 1, Stream: true,
			SupportsTools: true, SupportsAttachments: true, SupportsSearch: true,
			Keywords: []string{"gpt-5", "mini"}, RequiresRole: RoleBasicModels},
		{ID: "gpt-5.2", Text: "GPT 5.2", Icon: "openai", Model: "gpt-5.2", Temperature: 1, Stream: true,
			SupportsTools: true, SupportsAttachments: true, SupportsSearch: true,
			Keywords: []string{"gpt-5", "5.2"}, RequiresRole: RoleAdvancedModels},
	}
}

// DeepSeekModels returns the built-in DeepSeek catalog, served over the OpenAI-compatible API.
func DeepSeekModels() []model.AIModel {
	return []model.AIModel{
		{ID: "deepseek-chat", Text: "DeepSeek Chat", Icon: "deepseek", Model: "deepseek-chat", Temperature: 1, Stream: true,
			Keywords: []string{"deepseek"}, RequiresRole: RoleBasicModels},
		{ID: "deepseek-reasoner", Text: "DeepSeek Reasoner", Icon: "deepseek", Model: "deepseek-reasoner", Temperature: 1, Stream: true,
			Keywords: []string{"deepseek", "reasoning"}, RequiresRole: RoleAdvancedModels},
	}
}

// ClaudeModels returns the built-in Anthropic catalog.
func ClaudeModels() []model.AIModel {
	return []model.AIModel{
		{ID: "claude-haiku-4.5", Text: "Claude 4.5 Haiku", Icon: "anthropic", Model: "claude-haiku-4-5", Temperature: 1,
			Stream: true, SupportsTools: true, Keywords: []string{"haiku", "claude"}, RequiresRole: RoleBasicModels},
		{ID: "claude-sonnet-4.5", Text: "Claude 4.5 Sonnet", Icon: "anthropic", Model: "claude-sonnet-4-5", Temperature: 1,
			Stream: true, SupportsTools: true, Keywords: []string{"sonnet", "claude"}, RequiresRole: RoleAdvancedModels},
	}
}

// GeminiModels returns the built-in Google catalog.
func GeminiModels() []model.AIModel {
	return []model.AIModel{
		{ID: "gemini-3-pro-preview", Text: "Gemini 3 Pro", Icon: "googlegemini", Model: "gemini-3-pro-preview",
			Stream: true, SupportsTools: true, Keywords: []string{"pro", "gemini"}, RequiresRole: RoleAdvancedModels},
		{ID: "gemini-3-flash-preview", Text: "Gemini 3 Flash", Icon: "googlegemini", Model: "gemini-3-flash-preview",
			Stream: true, SupportsTools: true, Keywords: []string{"flash", "gemini"}, RequiresRole: RoleBasicModels},
	}
}

// PerplexityModels returns the built-in Perplexity catalog.
func PerplexityModels() []model.AIModel {
	return []model.AIModel{
		{ID: "sonar", Text: "Perplexity Sonar", Icon: "perplexity", Model: "sonar", Stream: true,
			SearchContextSize: ContextSizeMedium, Keywords: []string{"sonar", "perplexity"}, RequiresRole: RolePerplexityModels},
		{ID: "sonar-pro", Text: "Perplexity Sonar Pro", Icon: "perplexity", Model: "sonar-pro", Stream: true,
			SearchContextSize: ContextSizeMedium, Keywords: []string{"sonar", "perplexity"}, RequiresRole: RolePerplexityModels},
		{ID: "sonar-deep-research", Text: "Perplexity Deep Research", Icon: "perplexity", Model: "sonar-deep-research", Stream: true,
			SearchContextSize: ContextSizeHigh, Keywords: []string{"reasoning", "deep", "research", "perplexity"}, RequiresRole: RolePerplexityModels},
		{ID: "sonar-reasoning", Text: "Perplexity Reasoning", Icon: "perplexity", Model: "sonar-reasoning", Stream: true,
			SearchContextSize: ContextSizeHigh, Keywords: []string{"reasoning", "perplexity"}, RequiresRole: RolePerplexityModels},
	}
}
