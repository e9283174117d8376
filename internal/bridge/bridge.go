// Package bridge runs the LLM/tool turn loop: one completion per turn,
// dispatching any requested tool calls (guarded, optionally confirmed) and
// feeding their results back until the model answers with plain text.
//
// Tool failures never propagate out of a turn: they become result strings
// the model can react to. The only errors Step returns are LLM call
// failures and the turn bound being exceeded.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pablasso/stagehand/internal/guard"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/logging"
	"github.com/pablasso/stagehand/internal/tool"
)

// ErrMaxTurns indicates the model kept requesting tools past the turn bound.
var ErrMaxTurns = errors.New("tool turn limit exceeded")

// DefaultMaxTurns bounds a single Step call. A model stuck re-requesting
// tools surfaces as ErrMaxTurns instead of looping forever.
const DefaultMaxTurns = 25

// ConfirmFunc decides whether a dangerous tool call may run. A nil
// ConfirmFunc auto-approves.
type ConfirmFunc func(ctx context.Context, toolName string, args map[string]any) (bool, error)

// Bridge owns a conversation with the model and executes its tool calls.
type Bridge struct {
	client      llm.Client
	tools       *tool.Registry
	confirm     ConfirmFunc
	maxTurns    int
	temperature float64
	log         *logging.Logger

	systemPrompt string
	history      []llm.Message
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfirm installs a confirmation capability for dangerous tools.
func WithConfirm(fn ConfirmFunc) Option {
	return func(b *Bridge) { b.confirm = fn }
}

// WithMaxTurns overrides the turn bound.
func WithMaxTurns(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.maxTurns = n
		}
	}
}

// WithTemperature sets the sampling temperature for tool turns.
func WithTemperature(t float64) Option {
	return func(b *Bridge) { b.temperature = t }
}

// New creates a Bridge. logger may be nil.
func New(client llm.Client, tools *tool.Registry, systemPrompt string, logger *logging.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}
	b := &Bridge{
		client:       client,
		tools:        tools,
		maxTurns:     DefaultMaxTurns,
		temperature:  0.1,
		log:          logger,
		systemPrompt: systemPrompt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append adds a message to the conversation history.
func (b *Bridge) Append(msg llm.Message) {
	b.history = append(b.history, msg)
}

// Reset clears the conversation history.
func (b *Bridge) Reset() {
	b.history = nil
}

// History returns the conversation history (for inspection in tests).
func (b *Bridge) History() []llm.Message {
	return b.history
}

// Step runs turns until the model responds without tool calls, returning
// that response's text. When projectDir is non-empty, every path-bearing
// tool argument is resolved and guarded against it, and execute_command
// defaults its cwd to it.
func (b *Bridge) Step(ctx context.Context, projectDir string) (string, error) {
	schemas := b.toolSchemas()

	for turn := 0; turn < b.maxTurns; turn++ {
		messages := make([]llm.Message, 0, len(b.history)+1)
		if b.systemPrompt != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: b.systemPrompt})
		}
		messages = append(messages, b.history...)

		resp, err := b.client.Complete(ctx, llm.Request{
			Messages:    messages,
			Tools:       schemas,
			Temperature: b.temperature,
		})
		if err != nil {
			return "", err
		}

		b.history = append(b.history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		for _, call := range resp.ToolCalls {
			result := b.dispatch(ctx, call, projectDir)
			b.history = append(b.history, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    result,
			})
		}
	}

	return "", fmt.Errorf("%w after %d turns", ErrMaxTurns, b.maxTurns)
}

// dispatch runs one tool call and returns its result string. Every failure
// mode (bad JSON, path escape, denial, tool error) is stringified so the
// model can self-correct.
func (b *Bridge) dispatch(ctx context.Context, call llm.ToolCall, projectDir string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return fmt.Sprintf("Error: invalid JSON arguments for %s", call.Name)
	}
	if args == nil {
		args = make(map[string]any)
	}

	if projectDir != "" {
		for key, value := range args {
			raw, ok := value.(string)
			if !ok || !guard.PathArgs[key] {
				continue
			}
			resolved, err := guard.Resolve(raw, projectDir)
			if err != nil {
				b.log.Warn("path escape rejected", "tool", call.Name, "arg", key, "path", raw)
				return fmt.Sprintf("ERROR: %v", err)
			}
			args[key] = resolved
		}
		if call.Name == "execute_command" {
			if _, ok := args["cwd"]; !ok {
				args["cwd"] = projectDir
			}
		}
	}

	t := b.tools.Get(call.Name)
	if t == nil {
		return fmt.Sprintf("Error: tool %s not found", call.Name)
	}

	if tool.Dangerous[call.Name] && b.confirm != nil {
		confirmed, err := b.confirm(ctx, call.Name, args)
		if err != nil {
			return fmt.Sprintf("Error: confirmation failed: %v", err)
		}
		if !confirmed {
			return "Tool execution cancelled by user."
		}
	}

	b.log.Debug("tool call", "tool", call.Name)
	result, err := t.Run(ctx, args)
	if err != nil {
		b.log.Warn("tool error", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}
	return result
}

func (b *Bridge) toolSchemas() []llm.ToolSchema {
	names := b.tools.Names()
	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		t := b.tools.Get(name)
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}
