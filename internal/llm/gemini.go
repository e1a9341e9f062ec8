package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini is the production Model backed by the GenAI SDK. ModelName selects
// the model per client: the engine keeps one client on a capable model for
// code generation and one on a cheap model for summary extraction.
type Gemini struct {
	client    *genai.Client
	ModelName string
}

// NewGemini creates a client using ambient credentials (GEMINI_API_KEY or
// application-default credentials).
func NewGemini(ctx context.Context, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{client: client, ModelName: modelName}, nil
}

// GenerateText implements Model.
func (g *Gemini) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.ModelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenerateText: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GenerateText: empty response from model")
	}
	return text, nil
}

// GenerateJSON implements Model.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string, out any) error {
	raw, err := g.GenerateText(ctx, prompt)
	if err != nil {
		return err
	}

	clean := CleanJSON(raw)
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("GenerateJSON: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	return nil
}

// CleanJSON strips markdown fences and surrounding prose from a model reply,
// keeping only the outermost JSON value. Models wrap output in ```json blocks
// no matter how firmly the prompt forbids it.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there is still junk around the JSON, keep from the first opener to
	// its matching last closer.
	openArr := strings.Index(s, "[")
	openObj := strings.Index(s, "{")
	switch {
	case openArr != -1 && (openObj == -1 || openArr < openObj):
		if end := strings.LastIndex(s, "]"); end > openArr {
			s = s[openArr : end+1]
		}
	case openObj != -1:
		if end := strings.LastIndex(s, "}"); end > openObj {
			s = s[openObj : end+1]
		}
	}

	return strings.TrimSpace(s)
}

var _ Model = (*Gemini)(nil)
