// Package ai is the inference collaborator used by the VISUAL healing
// strategy and the analysis phase. Provider request framing lives entirely
// here; callers hand over a prompt (optionally with an image) and get
// structured JSON back.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is one inference call.
type Request struct {
	System    string
	Prompt    string
	ImagePNG  []byte
	MaxTokens int
}

// Response carries the raw completion plus, when the completion is a JSON
// object, its decoded form.
type Response struct {
	Content string
	JSON    map[string]any
}

// Client is implemented by inference providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// DecodeJSON extracts a JSON object from a completion, tolerating the code
// fences models like to wrap JSON in.
func DecodeJSON(content string) (map[string]any, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if i := strings.LastIndex(trimmed, "```"); i >= 0 {
			trimmed = trimmed[:i]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	// Fall back to the outermost braces when the model added prose around
	// the object.
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("completion contains no JSON object")
		}
		trimmed = trimmed[start : end+1]
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("failed to decode completion JSON: %w", err)
	}
	return out, nil
}
