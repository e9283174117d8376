package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenRouter is a Client backed by an openai-compatible endpoint via
// langchaingo. The zero value is not usable; construct with NewOpenRouter.
type OpenRouter struct {
	model llms.Model
}

// NewOpenRouter builds a client for the given endpoint and model. The API
// key is read from the named environment variable.
func NewOpenRouter(baseURL, model, apiKeyEnv string) (*OpenRouter, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key: set %s", apiKeyEnv)
	}

	m, err := openai.New(
		openai.WithToken(key),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &OpenRouter{model: m}, nil
}

// Complete performs one completion round trip.
func (o *OpenRouter) Complete(ctx context.Context, req Request) (*Turn, error) {
	messages, err := toContent(req.Messages)
	if err != nil {
		return nil, err
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}

	resp, err := o.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm returned no choices")
	}

	choice := resp.Choices[0]
	turn := &Turn{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return turn, nil
}

func toContent(messages []Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return out, nil
}

func toTools(schemas []ToolSchema) []llms.Tool {
	tools := make([]llms.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}
