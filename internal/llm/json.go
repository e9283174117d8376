package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxJSONAttempts bounds re-prompting when the model returns malformed JSON.
const maxJSONAttempts = 2

// ExtractJSON defensively extracts a JSON object from potentially noisy
// model output: markdown code fences are stripped, and if the whole string
// is not valid JSON the first balanced {...} object is used.
func ExtractJSON(raw string) ([]byte, error) {
	str := stripCodeFences(raw)

	if json.Valid([]byte(str)) {
		return []byte(str), nil
	}

	extracted := balancedObject(str)
	if extracted == "" {
		return nil, errors.New("no JSON object found in response")
	}
	if !json.Valid([]byte(extracted)) {
		return nil, errors.New("extracted content is not valid JSON")
	}
	return []byte(extracted), nil
}

// CompleteJSON sends the prompt and unmarshals the response into out.
// A malformed response is re-prompted once with the parse error attached;
// a second failure propagates.
func CompleteJSON(ctx context.Context, client Client, prompt string, temperature float64, out any) error {
	current := prompt
	var lastErr error

	for attempt := 0; attempt < maxJSONAttempts; attempt++ {
		turn, err := client.Complete(ctx, Request{
			Messages:    []Message{{Role: RoleUser, Content: current}},
			Temperature: temperature,
		})
		if err != nil {
			return err
		}

		data, err := ExtractJSON(turn.Text)
		if err == nil {
			if err := json.Unmarshal(data, out); err == nil {
				return nil
			} else {
				lastErr = err
			}
		} else {
			lastErr = err
		}

		current = fmt.Sprintf(
			"%s\n\nYour previous reply was not valid JSON (%v). Return ONLY the JSON object.",
			prompt, lastErr)
	}
	return fmt.Errorf("llm did not return valid JSON: %w", lastErr)
}

// stripCodeFences removes markdown code block markers from a string.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if cut, found := strings.CutPrefix(s, "```json"); found {
		s = cut
	} else if cut, found := strings.CutPrefix(s, "```"); found {
		s = cut
	}
	if cut, found := strings.CutSuffix(s, "```"); found {
		s = cut
	}
	return strings.TrimSpace(s)
}

// balancedObject returns the first brace-balanced JSON object in s,
// respecting string literals and escapes, or "" if none closes.
func balancedObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
