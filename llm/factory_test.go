package llm

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseProcessorType(t *testing.T) {
	tests := []struct {
		input   string
		want    ProcessorType
		wantErr bool
	}{
		{"openai", ProcessorOpenAI, false},
		{"OpenAI", ProcessorOpenAI, false},
		{"anthropic", ProcessorClaude, false},
		{"claude", ProcessorClaude, false},
		{"google", ProcessorGemini, false},
		{" perplexity ", ProcessorPerplexity, false},
		{"deepseek", ProcessorDeepSeek, false},
		{"lorem_ipsum", ProcessorLoremIpsum, false},
		{"replay", ProcessorReplay, false},
		{"mistral", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProcessorType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProcessorType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseProcessorType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestProcessorTypeStringRoundTrip(t *testing.T) {
	for p := ProcessorLoremIpsum; p <= ProcessorReplay; p++ {
		parsed, err := ParseProcessorType(p.String())
		if err != nil || parsed != p {
			t.Errorf("%v did not round trip: %v, %v", p, parsed, err)
		}
	}
	if ProcessorLoremIpsum.RequiresKey() || ProcessorReplay.RequiresKey() {
		t.Error("offline processors should not need a key")
	}
	if ProcessorClaude.EnvVar() != "ANTHROPIC_API_KEY" {
		t.Errorf("EnvVar = %q", ProcessorClaude.EnvVar())
	}
}

func TestBuildRegistrySkipsKeylessVendors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	manager := NewModelManager(logger)

	names, err := BuildRegistry(manager, []ProcessorConfig{
		{Type: ProcessorOpenAI},
		{Type: ProcessorLoremIpsum},
		{Type: ProcessorClaude, APIKey: "sk-ant-test"},
	}, logger)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if len(names) != 2 || names[0] != "lorem_ipsum" || names[1] != "claude" {
		t.Errorf("names = %v", names)
	}
	if logs.FilterMessage("Skipping processor without API key").Len() != 1 {
		t.Errorf("expected one skip log, got %v", logs.All())
	}
	if manager.ProcessorForModel(LoremIpsumModel.ID) == nil {
		t.Error("lorem ipsum model not registered")
	}
	if p := manager.ProcessorForModel("claude-haiku-4.5"); p == nil || p.Name() != "claude" {
		t.Error("claude models not registered")
	}
	if _, ok := manager.Model("gpt-5-mini"); ok {
		t.Error("keyless openai models should not be registered")
	}
}

func TestBuildRegistryDefaultSkipsPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		configs []ProcessorConfig
		want    string
	}{
		{
			name: "vendor after placeholder",
			configs: []ProcessorConfig{
				{Type: ProcessorLoremIpsum},
				{Type: ProcessorClaude, APIKey: "sk-ant-test"},
			},
			want: "claude-haiku-4.5",
		},
		{
			name:    "placeholder only",
			configs: []ProcessorConfig{{Type: ProcessorLoremIpsum}},
			want:    LoremIpsumModel.ID,
		},
		{
			name: "keyless vendor ignored",
			configs: []ProcessorConfig{
				{Type: ProcessorLoremIpsum},
				{Type: ProcessorOpenAI},
			},
			want: LoremIpsumModel.ID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewModelManager(nil)
			if _, err := BuildRegistry(manager, tt.configs, nil); err != nil {
				t.Fatalf("BuildRegistry: %v", err)
			}
			if got := manager.DefaultModel(); got != tt.want {
				t.Errorf("DefaultModel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewProcessorReplayNeedsPath(t *testing.T) {
	if _, err := NewProcessor(ProcessorConfig{Type: ProcessorReplay}); err == nil {
		t.Error("expected an error without a recording path")
	}
}

func TestNewProcessorDeepSeekCatalog(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{Type: ProcessorDeepSeek, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	if p.Name() != "deepseek" {
		t.Errorf("Name = %q", p.Name())
	}
	if _, ok := p.SupportedModels()["deepseek-reasoner"]; !ok {
		t.Errorf("models = %v", p.SupportedModels())
	}
}
