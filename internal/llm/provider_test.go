package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMockProvider_FIFO(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockResponse{Content: json.RawMessage(`{"b":2}`)},
	)

	resp, err := mock.Generate(context.Background(), Prompt("", "first", nil, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"a":1}` || resp.Usage.InputTokens != 10 || resp.StopReason != StopEnd {
		t.Fatalf("first response = %+v", resp)
	}

	resp, err = mock.Generate(context.Background(), Prompt("", "second", nil, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"b":2}` {
		t.Fatalf("second content = %s", resp.Content)
	}

	if mock.CallCount() != 2 || mock.Calls[1].Messages[0].Content != "second" {
		t.Errorf("calls = %+v", mock.Calls)
	}
}

func TestMockProvider_EmptyQueue(t *testing.T) {
	_, err := NewMockProvider().Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %T", err)
	}
}

func TestMockProvider_ValidatesSchema(t *testing.T) {
	mock := NewMockProvider(MockJSON(map[string]any{"score": "nope"}))
	_, err := mock.Generate(context.Background(), Prompt("", "x", testSchema(), 10))
	var invalid *ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse, got %T (%v)", err, err)
	}
}

func TestMockProvider_TruncatedStructured(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"sc`), Stop: StopMaxTokens})
	_, err := mock.Generate(context.Background(), Prompt("", "x", testSchema(), 10))
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("expected ErrMaxTokensExceeded, got %T (%v)", err, err)
	}
}

func TestMockJSON(t *testing.T) {
	r := MockJSON(map[string]any{"score": 0.25})
	if r.Err != nil || string(r.Content) != `{"score":0.25}` || r.Usage.TotalTokens != 140 {
		t.Fatalf("MockJSON = %+v", r)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &ErrRateLimit{}, true},
		{"unavailable", &ErrProviderUnavailable{}, true},
		{"invalid", &ErrInvalidResponse{}, true},
		{"max tokens", &ErrMaxTokensExceeded{}, false},
		{"canceled", context.Canceled, false},
		{"deadline wrapped", &ErrProviderUnavailable{Err: context.DeadlineExceeded}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestContextLabels(t *testing.T) {
	ctx := context.Background()
	if PurposeFrom(ctx) != "unknown" || StudentFrom(ctx) != "" {
		t.Fatal("unexpected defaults")
	}
	ctx = WithStudent(WithPurpose(ctx, PurposeEvaluate), "s-1")
	if PurposeFrom(ctx) != PurposeEvaluate || StudentFrom(ctx) != "s-1" {
		t.Errorf("labels = %q %q", PurposeFrom(ctx), StudentFrom(ctx))
	}
}

func TestConfigFromLookup(t *testing.T) {
	env := map[string]string{
		"SQLTUTOR_LLM_PROVIDER":     "openai",
		"SQLTUTOR_OPENAI_API_KEY":   "sk-test",
		"SQLTUTOR_OPENAI_MODEL":     "gpt-4o",
		"SQLTUTOR_LLM_TIMEOUT":      "5s",
		"SQLTUTOR_LLM_MAX_ATTEMPTS": "not-a-number",
	}
	cfg := configFromLookup(func(k string) string { return env[k] })

	if cfg.Provider != ProviderOpenAI || cfg.OpenAI.APIKey != "sk-test" || cfg.Model() != "gpt-4o" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != DefaultConfig().Retry.MaxAttempts {
		t.Errorf("a bad attempt count should keep the default, got %d", cfg.Retry.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SQLTUTOR_ANTHROPIC_API_KEY") {
		t.Errorf("missing key error = %v", err)
	}

	cfg.Provider = "cohere"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown provider error")
	}

	cfg.Provider = ProviderMock
	if err := cfg.Validate(); err != nil || !cfg.HasAPIKey() {
		t.Errorf("mock should need no key: %v", err)
	}
}

func TestProviders(t *testing.T) {
	ps := Providers()
	if len(ps) != 4 || ps[0].Name != ProviderAnthropic || ps[0].DefaultModel != "claude-haiku" {
		t.Errorf("providers = %+v", ps)
	}
}

func TestNewProvider_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderMock
	p, err := NewProvider(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != ProviderMock || p.ModelID() != "mock" {
		t.Errorf("provider = %s/%s", p.Name(), p.ModelID())
	}
}

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewProvider(context.Background(), DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error without an API key")
	}
}
