// Package classifier is the seam to the external classification
// service. It owns the two payload shapes the service understands
// (page transcription and structured extraction) and the defensive
// parsing of its untrusted text responses.
package classifier

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Request is a single blocking call to the classification service:
// an instruction plus an optional inline document payload.
type Request struct {
	Prompt   string
	Document []byte // inline PDF bytes, nil for text-only requests
}

// Model abstracts the underlying generative backend so tests and
// alternative providers can stand in for Gemini.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiModel calls Gemini through the genai SDK. Calls are single
// attempt: a failure is reported up immediately rather than retried,
// so persistent extraction problems are never masked as transient.
type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiModel creates the production model client. Credentials come
// from the environment the way the genai SDK expects them.
func NewGeminiModel(ctx context.Context, model string, timeout time.Duration) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: create genai client: %w", err)
	}
	return &GeminiModel{client: client, model: model, timeout: timeout}, nil
}

// Generate implements Model.
func (m *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Document) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: "application/pdf",
				Data:     req.Document,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("classifier: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("classifier: empty response from model")
	}
	return text, nil
}
