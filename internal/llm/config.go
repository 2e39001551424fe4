package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider keys accepted in Config.Provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config selects and configures the grading model.
type Config struct {
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds one Generate call including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible gateways
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig is the backoff policy for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns the built-in defaults. Grading is short and
// latency-bound, so every provider defaults to its small fast model.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "openai/gpt-4o-mini"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 45 * time.Second,
	}
}

// envBinding ties one SQLTUTOR_* variable to a config field.
type envBinding struct {
	name string
	set  func(*Config, string)
}

var envBindings = []envBinding{
	{"SQLTUTOR_LLM_PROVIDER", func(c *Config, v string) { c.Provider = v }},
	{"SQLTUTOR_ANTHROPIC_API_KEY", func(c *Config, v string) { c.Anthropic.APIKey = v }},
	{"SQLTUTOR_ANTHROPIC_MODEL", func(c *Config, v string) { c.Anthropic.Model = v }},
	{"SQLTUTOR_OPENAI_API_KEY", func(c *Config, v string) { c.OpenAI.APIKey = v }},
	{"SQLTUTOR_OPENAI_MODEL", func(c *Config, v string) { c.OpenAI.Model = v }},
	{"SQLTUTOR_OPENAI_BASE_URL", func(c *Config, v string) { c.OpenAI.BaseURL = v }},
	{"SQLTUTOR_GEMINI_API_KEY", func(c *Config, v string) { c.Gemini.APIKey = v }},
	{"SQLTUTOR_GEMINI_MODEL", func(c *Config, v string) { c.Gemini.Model = v }},
	{"SQLTUTOR_OPENROUTER_API_KEY", func(c *Config, v string) { c.OpenRouter.APIKey = v }},
	{"SQLTUTOR_OPENROUTER_MODEL", func(c *Config, v string) { c.OpenRouter.Model = v }},
	{"SQLTUTOR_OPENROUTER_BASE_URL", func(c *Config, v string) { c.OpenRouter.BaseURL = v }},
	{"SQLTUTOR_LLM_TIMEOUT", func(c *Config, v string) {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Timeout = d
		}
	}},
	{"SQLTUTOR_LLM_MAX_ATTEMPTS", func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retry.MaxAttempts = n
		}
	}},
}

// ConfigFromEnv overlays the SQLTUTOR_* variables on the defaults.
func ConfigFromEnv() Config {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) Config {
	cfg := DefaultConfig()
	for _, b := range envBindings {
		if v := getenv(b.name); v != "" {
			b.set(&cfg, v)
		}
	}
	return cfg
}

// discoveryOrder lists the vendors' own key variables, most preferred first.
var discoveryOrder = []struct {
	env      string
	provider string
}{
	{"ANTHROPIC_API_KEY", ProviderAnthropic},
	{"OPENAI_API_KEY", ProviderOpenAI},
	{"GEMINI_API_KEY", ProviderGemini},
	{"OPENROUTER_API_KEY", ProviderOpenRouter},
}

// DiscoverConfig picks the first provider whose standard API key variable
// is set. It reports false when none is.
func DiscoverConfig() (Config, bool) {
	for _, d := range discoveryOrder {
		key := os.Getenv(d.env)
		if key == "" {
			continue
		}
		cfg := DefaultConfig()
		cfg.Provider = d.provider
		cfg.setAPIKey(key)
		return cfg, true
	}
	return Config{}, false
}

func (c *Config) setAPIKey(key string) {
	switch c.Provider {
	case ProviderAnthropic:
		c.Anthropic.APIKey = key
	case ProviderOpenAI:
		c.OpenAI.APIKey = key
	case ProviderGemini:
		c.Gemini.APIKey = key
	case ProviderOpenRouter:
		c.OpenRouter.APIKey = key
	}
}

// HasAPIKey reports whether the selected provider has a key.
func (c Config) HasAPIKey() bool {
	switch c.Provider {
	case ProviderAnthropic:
		return c.Anthropic.APIKey != ""
	case ProviderOpenAI:
		return c.OpenAI.APIKey != ""
	case ProviderGemini:
		return c.Gemini.APIKey != ""
	case ProviderOpenRouter:
		return c.OpenRouter.APIKey != ""
	case ProviderMock:
		return true
	}
	return false
}

// Model returns the configured model alias of the selected provider.
func (c Config) Model() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.Anthropic.Model
	case ProviderOpenAI:
		return c.OpenAI.Model
	case ProviderGemini:
		return c.Gemini.Model
	case ProviderOpenRouter:
		return c.OpenRouter.Model
	case ProviderMock:
		return "mock"
	}
	return ""
}

// Validate checks that the selected provider is known and has a key.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOpenRouter:
		if !c.HasAPIKey() {
			return fmt.Errorf("SQLTUTOR_%s_API_KEY is required for the %s provider", envName(c.Provider), c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

func envName(provider string) string {
	return strings.ToUpper(provider)
}

// ProviderInfo describes one supported provider for listings.
type ProviderInfo struct {
	Name         string
	DefaultModel string
	Aliases      map[string]string
	KeyEnv       string
}

// Providers lists the supported vendors with their defaults.
func Providers() []ProviderInfo {
	d := DefaultConfig()
	return []ProviderInfo{
		{ProviderAnthropic, d.Anthropic.Model, anthropicModels, "SQLTUTOR_ANTHROPIC_API_KEY"},
		{ProviderOpenAI, d.OpenAI.Model, openaiModels, "SQLTUTOR_OPENAI_API_KEY"},
		{ProviderGemini, d.Gemini.Model, geminiModels, "SQLTUTOR_GEMINI_API_KEY"},
		{ProviderOpenRouter, d.OpenRouter.Model, nil, "SQLTUTOR_OPENROUTER_API_KEY"},
	}
}
