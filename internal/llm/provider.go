// Package llm talks to hosted language models. The answer oracle is its
// only consumer: it sends one grading prompt per attempt and expects a
// JSON object back that matches a schema.
package llm

import (
	"context"
	"encoding/json"
)

// Provider is one configured model behind a vendor SDK.
type Provider interface {
	// Generate sends the request and returns the model output. When the
	// request carries a Schema, Content is JSON that has already been
	// validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name is the provider key ("anthropic", "openai", ...).
	Name() string

	// ModelID is the model the provider sends requests to.
	ModelID() string
}

// Request is a single generation call.
type Request struct {
	System   string
	Messages []Message

	// Schema asks the provider for structured output. Nil means free text,
	// returned as raw bytes in Response.Content.
	Schema *Schema

	MaxTokens   int
	Temperature float64 // 0 leaves the vendor default
}

// Prompt builds a single-turn request.
func Prompt(system, user string, schema *Schema, maxTokens int) Request {
	return Request{
		System:    system,
		Messages:  []Message{{Role: RoleUser, Content: user}},
		Schema:    schema,
		MaxTokens: maxTokens,
	}
}

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema for structured output.
type Schema struct {
	// Name is sent as the schema / tool name. Kebab-case.
	Name        string
	Description string
	Definition  map[string]any
}

// Stop reasons, normalized across vendors.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Response is the model output.
type Response struct {
	Content    json.RawMessage
	Usage      Usage
	Model      string // model that actually served the call
	StopReason string
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// finish validates structured content and turns a truncated structured
// reply into ErrMaxTokensExceeded. Every vendor adapter ends with it.
func finish(req Request, resp *Response) (*Response, error) {
	if req.Schema == nil {
		return resp, nil
	}
	if resp.StopReason == StopMaxTokens {
		return nil, &ErrMaxTokensExceeded{Content: resp.Content}
	}
	if err := validateResponse(req.Schema, resp.Content); err != nil {
		return nil, err
	}
	return resp, nil
}

// resolveModel maps a short alias to a vendor model id. Unknown names are
// passed through so full ids work too.
func resolveModel(name string, aliases map[string]string) string {
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}
