package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/v2-coach/internal/domain"
)

const DefaultVertexModel = "gemini-2.5-flash"

type VertexConfig struct {
	Project     string
	Location    string
	Model       string
	Temperature float32
	MaxTokens   int
}

type VertexClient struct {
	client *genai.Client
	cfg    VertexConfig
}

// NewVertexClient creates a CoachClient based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex project and location must be set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVertexModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{client: client, cfg: cfg}, nil
}

// GenerateReply implements domain.CoachClient using Vertex AI.
func (v *VertexClient) GenerateReply(ctx context.Context, userMessage string, stats domain.UserStats) (string, error) {
	p := BuildPrompt(userMessage, stats)

	contents := []*genai.Content{genai.NewContentFromText(p.User, genai.RoleUser)}

	temp := v.cfg.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(v.cfg.MaxTokens),
	}

	res, err := v.client.Models.GenerateContent(ctx, v.cfg.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}

	// only the text, never the raw structs
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("vertex returned empty text")
	}
	return text, nil
}
