package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

// OllamaClient talks to a local Ollama server. Structured output is requested
// through the "format" field with the same JSON schema Gemini gets.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements domain.CompletionClient.
func (o *OllamaClient) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	return traced(ctx, "ollama", o.model, func(ctx context.Context) (domain.CompletionResult, error) {
		text, err := o.chat(ctx, req)
		if err != nil {
			return domain.CompletionResult{}, &domain.ProviderError{Provider: "ollama", Err: err}
		}
		return ParseResult(text)
	})
}

func (o *OllamaClient) chat(ctx context.Context, req domain.CompletionRequest) (string, error) {
	messages := make([]ollamaMessage, 0, len(req.Turns)+1)
	messages = append(messages, ollamaMessage{Role: "system", Content: req.Instruction})
	for _, t := range req.Turns {
		messages = append(messages, ollamaMessage{Role: string(t.Role), Content: t.Content})
	}

	body, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Format:   jsonResponseSchema,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(data))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Message.Content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return apiResp.Message.Content, nil
}
