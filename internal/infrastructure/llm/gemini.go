package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"NewsRelay/internal/config"
	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// GeminiSummarizer implements ports.Summarizer on the Gemini API.
type GeminiSummarizer struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

var _ ports.Summarizer = (*GeminiSummarizer)(nil)

// NewGeminiSummarizer creates the genai client. baseURL is empty outside tests.
func NewGeminiSummarizer(ctx context.Context, cfg config.GeminiConfig, baseURL string) (*GeminiSummarizer, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("gemini client misconfigured")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiSummarizer{client: client, model: cfg.Model, systemPrompt: cfg.SystemPrompt}, nil
}

// Summarize returns the concatenated text parts of the first candidate.
func (g *GeminiSummarizer) Summarize(ctx context.Context, items []domain.NewsItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("nothing to summarise")
	}

	content := genai.NewContentFromText(headlineList(items), genai.RoleUser)
	temperature := float32(0.2)
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(safePrompt(g.systemPrompt), genai.RoleUser),
		Temperature:       &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("gemini returned empty content")
	}
	return text, nil
}
