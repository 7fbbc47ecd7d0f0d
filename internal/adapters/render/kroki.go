package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// KrokiEngine renders through a Kroki server (https://kroki.io or self-hosted).
// Kroki has no validate-only endpoint, so Parse renders and keeps the result
// for the Render call that follows.
type KrokiEngine struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	lastSrc string
	lastSVG string
}

func NewKrokiEngine(baseURL string, timeout time.Duration) *KrokiEngine {
	return &KrokiEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (k *KrokiEngine) Parse(ctx context.Context, source string) error {
	svg, err := k.post(ctx, source)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.lastSrc, k.lastSVG = source, svg
	k.mu.Unlock()
	return nil
}

// Render returns the SVG as produced by Kroki. The id is not applied since
// Kroki assigns its own.
func (k *KrokiEngine) Render(ctx context.Context, _ string, source string) (string, error) {
	k.mu.Lock()
	if k.lastSrc == source && k.lastSVG != "" {
		svg := k.lastSVG
		k.lastSrc, k.lastSVG = "", ""
		k.mu.Unlock()
		return svg, nil
	}
	k.mu.Unlock()
	return k.post(ctx, source)
}

func (k *KrokiEngine) post(ctx context.Context, source string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/mermaid/svg", strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "text/plain")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kroki request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read kroki response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return "", errors.New(strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("kroki error: %s", resp.Status)
	}
	return string(body), nil
}
