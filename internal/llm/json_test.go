package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractJSON_Direct(t *testing.T) {
	data, err := ExtractJSON(`{"workflow": "build", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"build"`) {
		t.Errorf("unexpected result: %s", data)
	}
}

func TestExtractJSON_CodeFences(t *testing.T) {
	tests := []string{
		"```json\n{\"a\": 1}\n```",
		"```\n{\"a\": 1}\n```",
		"  {\"a\": 1}  ",
	}
	for _, input := range tests {
		data, err := ExtractJSON(input)
		if err != nil {
			t.Fatalf("ExtractJSON(%q) error: %v", input, err)
		}
		if string(data) != `{"a": 1}` {
			t.Errorf("ExtractJSON(%q) = %s", input, data)
		}
	}
}

func TestExtractJSON_NoisyProse(t *testing.T) {
	input := `Here is the plan you asked for: {"steps": [{"step_number": 1}]} hope it helps!`
	data, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"steps": [{"step_number": 1}]}` {
		t.Errorf("got %s", data)
	}
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	input := `{"description": "use {braces} and \"quotes\" freely"}`
	data, err := ExtractJSON("noise " + input + " trailing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != input {
		t.Errorf("got %s, want %s", data, input)
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	if _, err := ExtractJSON("no json here at all"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestExtractJSON_Unbalanced(t *testing.T) {
	if _, err := ExtractJSON(`{"open": true`); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// scriptedClient returns canned turns in order.
type scriptedClient struct {
	turns []Turn
	calls int
	err   error
}

func (s *scriptedClient) Complete(_ context.Context, _ Request) (*Turn, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.turns) {
		return &Turn{}, nil
	}
	t := s.turns[s.calls]
	s.calls++
	return &t, nil
}

func TestCompleteJSON_FirstTry(t *testing.T) {
	client := &scriptedClient{turns: []Turn{{Text: `{"name": "demo"}`}}}

	var out struct {
		Name string `json:"name"`
	}
	if err := CompleteJSON(context.Background(), client, "prompt", 0.2, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "demo" {
		t.Errorf("Name = %q, want demo", out.Name)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestCompleteJSON_RepromptOnMalformed(t *testing.T) {
	client := &scriptedClient{turns: []Turn{
		{Text: "sorry, no json"},
		{Text: `{"name": "second"}`},
	}}

	var out struct {
		Name string `json:"name"`
	}
	if err := CompleteJSON(context.Background(), client, "prompt", 0.2, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "second" {
		t.Errorf("Name = %q, want second", out.Name)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestCompleteJSON_GivesUpAfterBoundedAttempts(t *testing.T) {
	client := &scriptedClient{turns: []Turn{
		{Text: "still not json"},
		{Text: "never json"},
		{Text: `{"name": "too-late"}`},
	}}

	var out struct{}
	err := CompleteJSON(context.Background(), client, "prompt", 0.2, &out)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if client.calls != maxJSONAttempts {
		t.Errorf("calls = %d, want %d", client.calls, maxJSONAttempts)
	}
}

func TestCompleteJSON_ClientErrorPropagates(t *testing.T) {
	wantErr := errors.New("network down")
	client := &scriptedClient{err: wantErr}

	var out struct{}
	if err := CompleteJSON(context.Background(), client, "prompt", 0.2, &out); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}
