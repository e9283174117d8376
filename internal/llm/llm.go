// Package llm defines the narrow LLM capability the engine depends on: one
// completion round trip that returns text, tool-call requests, or both.
// The concrete client lives behind the Client interface so tests can drive
// the engine with a scripted fake.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation entry.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that requested tool use.
	ToolCalls []ToolCall

	// ToolCallID and Name tag tool-result messages to their originating call.
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// string as returned by the model; parsing failures are the bridge's
// responsibility.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSchema describes one callable tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
}

// Turn is the model's response: terminal text, tool-call requests, or both.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the LLM capability. Implementations must be safe for sequential
// reuse; failures (network, auth, rate limit) return an error and are
// retryable at the caller's discretion.
type Client interface {
	Complete(ctx context.Context, req Request) (*Turn, error)
}
