package vlm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// DefaultModel is the vision model used when the config names none.
const DefaultModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini analyzer.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini implements Analyzer over the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// GeminiOption customizes a Gemini analyzer.
type GeminiOption func(*Gemini)

// WithLogger sets the analyzer logger.
func WithLogger(l *slog.Logger) GeminiOption {
	return func(g *Gemini) { g.logger = l }
}

// NewGemini creates the analyzer. The API key must already be resolved; see
// ResolveAPIKey.
func NewGemini(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vlm: gemini requires an api key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("vlm: create gemini client: %w", err)
	}
	g := &Gemini{client: client, model: cfg.Model, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// AnalyzeWithVision sends one prompt plus screenshot and returns the raw
// text reply.
func (g *Gemini) AnalyzeWithVision(ctx context.Context, prompt string, screenshotPNG []byte) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(screenshotPNG) > 0 {
		parts = append(parts, genai.NewPartFromBytes(screenshotPNG, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("vlm: generate content: %w", err)
	}
	text := resp.Text()
	g.logger.Debug("vlm: gemini reply", "model", g.model, "chars", len(text))
	return text, nil
}
