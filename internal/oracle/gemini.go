package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/meowtion/sensor/internal/apperr"
)

// DefaultModel is the multimodal model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Gemini implements Client against the Google Gemini API. One instance is
// constructed at startup and injected into every consumer; the underlying
// SDK client is safe for concurrent use.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini oracle client.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

// Generate sends the ordered parts with the schema constraint and returns
// the raw JSON text of the response.
func (g *Gemini) Generate(ctx context.Context, parts []Part, schema *Schema) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	genParts := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			raw, err := p.Image.Bytes()
			if err != nil {
				return nil, err
			}
			genParts = append(genParts, genai.NewPartFromBytes(raw, p.Image.MediaType))
			continue
		}
		genParts = append(genParts, genai.NewPartFromText(p.Text))
	}

	contents := []*genai.Content{genai.NewContentFromParts(genParts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenAISchema(schema),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, &apperr.OracleError{Reason: "generate content failed", Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, &apperr.OracleError{Reason: "empty response"}
	}
	return []byte(text), nil
}

func toGenAISchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Items:       toGenAISchema(s.Items),
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeString:
		out.Type = genai.TypeString
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	case TypeArray:
		out.Type = genai.TypeArray
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenAISchema(prop)
		}
	}
	return out
}
