// Package config provides application settings loaded from environment variables
// and the model catalog loaded from YAML.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Vendor key and endpoint lookup per processor type

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/richinex/chatkit/llm"
	"github.com/richinex/chatkit/model"
)

// ErrUnknownProcessorType is returned for catalog entries naming no known processor.
var ErrUnknownProcessorType = errors.New("unknown processor type")

// Settings holds all application configuration.
type Settings struct {
	Log     LogConfig
	Storage StorageConfig
	LLM     LLMConfig
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig holds thread persistence configuration.
type StorageConfig struct {
	DBPath string
}

// LLMConfig holds processor configuration.
type LLMConfig struct {
	DefaultModel   string
	MaxTokens      int
	ThinkingBudget int
	ModelsFile     string
	MCPFile        string
	ReplayDelay    time.Duration
}

// Vendor endpoint overrides.
var baseURLEnv = map[llm.ProcessorType]string{
	llm.ProcessorOpenAI: "OPENAI_BASE_URL",
	llm.ProcessorClaude: "ANTHROPIC_BASE_URL",
}

// New creates settings, loading values from environment variables.
// Returns an error if environment variables contain invalid values.
func New() (Settings, error) {
	maxTokens, err := getEnvInt("CHATKIT_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	thinkingBudget, err := getEnvInt("CHATKIT_THINKING_BUDGET", 10000)
	if err != nil {
		return Settings{}, err
	}

	delay, err := getEnvDuration("CHATKIT_REPLAY_DELAY", 0)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Log: LogConfig{
			Level:  getEnv("CHATKIT_LOG_LEVEL", "info"),
			Format: getEnv("CHATKIT_LOG_FORMAT", "console"),
		},
		Storage: StorageConfig{
			DBPath: getEnv("CHATKIT_DB_PATH", "chatkit.db"),
		},
		LLM: LLMConfig{
			DefaultModel:   os.Getenv("CHATKIT_DEFAULT_MODEL"),
			MaxTokens:      maxTokens,
			ThinkingBudget: thinkingBudget,
			ModelsFile:     os.Getenv("CHATKIT_MODELS_FILE"),
			MCPFile:        os.Getenv("CHATKIT_MCP_FILE"),
			ReplayDelay:    delay,
		},
	}, nil
}

// MustNew creates settings.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// APIKeyFor returns the API key for a processor type from environment variables.
// Offline processors need none and get an empty key.
func APIKeyFor(t llm.ProcessorType) (string, error) {
	env := t.EnvVar()
	if env == "" {
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", env)
	}
	return key, nil
}

// BaseURLFor returns the endpoint override for a processor type, or "".
func BaseURLFor(t llm.ProcessorType) string {
	if env, ok := baseURLEnv[t]; ok {
		return os.Getenv(env)
	}
	return ""
}

// CatalogEntry is one processor of the model catalog.
type CatalogEntry struct {
	ProcessorType string          `yaml:"processor_type"`
	Name          string          `yaml:"name,omitempty"`
	APIKeyEnv     string          `yaml:"api_key_env,omitempty"`
	BaseURL       string          `yaml:"base_url,omitempty"`
	Recording     string          `yaml:"recording,omitempty"`
	Models        []model.AIModel `yaml:"models,omitempty"`
}

// Catalog lists the processors to register.
type Catalog struct {
	Processors []CatalogEntry `yaml:"processors"`
}

// DefaultCatalog returns every vendor with its built-in models.
func DefaultCatalog() Catalog {
	return Catalog{Processors: []CatalogEntry{
		{ProcessorType: llm.ProcessorLoremIpsum.String()},
		{ProcessorType: llm.ProcessorOpenAI.String()},
		{ProcessorType: llm.ProcessorDeepSeek.String()},
		{ProcessorType: llm.ProcessorPerplexity.String()},
		{ProcessorType: llm.ProcessorClaude.String()},
		{ProcessorType: llm.ProcessorGemini.String()},
	}}
}

// LoadCatalog reads a YAML model catalog. Processor types are validated on load.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, entry := range catalog.Processors {
		if _, err := llm.ParseProcessorType(entry.ProcessorType); err != nil {
			return Catalog{}, fmt.Errorf("%w: entry %d: %q", ErrUnknownProcessorType, i, entry.ProcessorType)
		}
	}
	return catalog, nil
}

// ProcessorConfigs resolves the catalog against the environment. Entries whose
// key is missing keep an empty key so the registry can skip them.
func (s Settings) ProcessorConfigs(catalog Catalog, logger *zap.Logger) ([]llm.ProcessorConfig, error) {
	configs := make([]llm.ProcessorConfig, 0, len(catalog.Processors))
	for _, entry := range catalog.Processors {
		t, err := llm.ParseProcessorType(entry.ProcessorType)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProcessorType, entry.ProcessorType)
		}

		key := ""
		if entry.APIKeyEnv != "" {
			key = os.Getenv(entry.APIKeyEnv)
		} else {
			key, _ = APIKeyFor(t)
		}

		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = BaseURLFor(t)
		}

		configs = append(configs, llm.ProcessorConfig{
			Type:           t,
			Name:           entry.Name,
			APIKey:         key,
			BaseURL:        baseURL,
			Models:         entry.Models,
			MaxTokens:      s.LLM.MaxTokens,
			ThinkingBudget: s.LLM.ThinkingBudget,
			RecordingPath:  entry.Recording,
			Delay:          s.LLM.ReplayDelay,
			Logger:         logger,
		})
	}
	return configs, nil
}

// Catalog returns the catalog named by CHATKIT_MODELS_FILE, or the default one.
func (s Settings) Catalog() (Catalog, error) {
	if s.LLM.ModelsFile == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalog(s.LLM.ModelsFile)
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
