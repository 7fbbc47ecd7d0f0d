package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

// contentGenerator is the part of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	models    contentGenerator
	modelName string
	backend   string
	timeout   time.Duration
}

type GeminiConfig struct {
	APIKey    string // Gemini API backend
	Project   string // Vertex AI backend when set
	Location  string
	ModelName string
	Timeout   time.Duration
}

// NewGeminiClient creates a CompletionClient backed by Gemini, either through
// the Gemini API (APIKey) or Vertex AI (Project/Location).
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	backend := "gemini"
	if cfg.Project != "" {
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
		backend = "vertex"
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: an API key or a GCP project is required")
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", backend, err)
	}

	return newGeminiClient(client.Models, backend, cfg), nil
}

func newGeminiClient(models contentGenerator, backend string, cfg GeminiConfig) *GeminiClient {
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		models:    models,
		modelName: modelName,
		backend:   backend,
		timeout:   timeout,
	}
}

// Complete implements domain.CompletionClient.
func (g *GeminiClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	return traced(ctx, g.backend, g.modelName, func(ctx context.Context) (domain.CompletionResult, error) {
		text, err := g.generate(ctx, req)
		if err != nil {
			return domain.CompletionResult{}, &domain.ProviderError{Provider: g.backend, Err: err}
		}
		return ParseResult(text)
	})
}

func (g *GeminiClient) generate(ctx context.Context, req domain.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Assistant turns are sent as the model's own so it keeps full context.
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}

	temp := float32(0.4)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instruction, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(8192),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiResponseSchema(),
	}

	res, err := g.models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%s returned empty text", g.backend)
	}
	return text, nil
}
