package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderVertex Provider = "vertex"
	ProviderOllama Provider = "ollama"
	ProviderMock   Provider = "mock"
)

type RendererBackend string

const (
	RendererBrowser RendererBackend = "browser"
	RendererKroki   RendererBackend = "kroki"
	RendererNone    RendererBackend = "none"
)

type Config struct {
	Port string

	// Completion provider
	Provider          Provider
	APIKey            string // the single provider credential
	ModelName         string
	GCPProjectID      string
	GCPLocation       string
	OllamaURL         string
	CompletionTimeout time.Duration

	// Behavioral contract YAML; empty uses the built-in default.
	ContractPath string

	// Rendering
	Renderer       RendererBackend
	RenderTimeout  time.Duration
	MermaidJSURL   string
	BrowserBin     string // empty lets rod download or find Chrome
	BrowserControl string // connect to an existing Chrome instead of launching
	KrokiURL       string

	// Observability
	LogLevel     string
	LogFile      string
	TelemetryDir string // empty disables exporters
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads all env vars, builds the config and validates it.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the config from env vars without validating it, so callers
// can apply flag overrides first.
func FromEnv() (*Config, error) {
	completionTimeout, err := getDurationEnv("MERMAIDBOT_COMPLETION_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	renderTimeout, err := getDurationEnv("MERMAIDBOT_RENDER_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	provider := Provider(strings.ToLower(getEnv("MERMAIDBOT_PROVIDER", string(ProviderGemini))))
	if getBoolEnv("MERMAIDBOT_USE_MOCK_LLM", false) {
		provider = ProviderMock
	}

	cfg := &Config{
		Port: getEnv("MERMAIDBOT_PORT", "8080"),

		Provider:          provider,
		APIKey:            getEnv("MERMAIDBOT_API_KEY", ""),
		ModelName:         getEnv("MERMAIDBOT_MODEL_NAME", ""), // empty picks the provider default
		GCPProjectID:      getEnv("MERMAIDBOT_GCP_PROJECT", ""),
		GCPLocation:       getEnv("MERMAIDBOT_GCP_LOCATION", "us-central1"),
		OllamaURL:         getEnv("MERMAIDBOT_OLLAMA_URL", "http://localhost:11434"),
		CompletionTimeout: completionTimeout,

		ContractPath: getEnv("MERMAIDBOT_CONTRACT", ""),

		Renderer:       RendererBackend(strings.ToLower(getEnv("MERMAIDBOT_RENDERER", string(RendererBrowser)))),
		RenderTimeout:  renderTimeout,
		MermaidJSURL:   getEnv("MERMAIDBOT_MERMAID_JS_URL", "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.min.js"),
		BrowserBin:     getEnv("MERMAIDBOT_BROWSER_BIN", ""),
		BrowserControl: getEnv("MERMAIDBOT_BROWSER_CONTROL_URL", ""),
		KrokiURL:       getEnv("MERMAIDBOT_KROKI_URL", "https://kroki.io"),

		LogLevel:     getEnv("MERMAIDBOT_LOG_LEVEL", "info"),
		LogFile:      getEnv("MERMAIDBOT_LOG_FILE", ""),
		TelemetryDir: getEnv("MERMAIDBOT_TELEMETRY_DIR", ""),
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot default its way out of.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("MERMAIDBOT_API_KEY must be set for the gemini provider")
		}
	case ProviderVertex:
		if c.GCPProjectID == "" {
			return fmt.Errorf("MERMAIDBOT_GCP_PROJECT must be set for the vertex provider")
		}
	case ProviderOllama, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.Renderer {
	case RendererBrowser, RendererKroki, RendererNone:
	default:
		return fmt.Errorf("unknown renderer %q", c.Renderer)
	}

	if c.CompletionTimeout <= 0 || c.RenderTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
