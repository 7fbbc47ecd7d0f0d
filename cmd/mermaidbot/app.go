package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mermaidbot/internal/adapters/llm"
	"github.com/PabloGalante/mermaidbot/internal/adapters/render"
	"github.com/PabloGalante/mermaidbot/internal/adapters/storage/memory"
	"github.com/PabloGalante/mermaidbot/internal/app/conversation"
	"github.com/PabloGalante/mermaidbot/internal/config"
	"github.com/PabloGalante/mermaidbot/internal/contract"
	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

// app is the wired object graph shared by serve and chat.
type app struct {
	cfg       *config.Config
	contracts *contract.Store
	svc       *conversation.Service
	logger    *slog.Logger

	closers []func(context.Context) error
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = config.Provider(flagProvider)
	}
	if flags.Changed("renderer") {
		cfg.Renderer = config.RendererBackend(flagRenderer)
	}
	if flags.Changed("contract") {
		cfg.ContractPath = flagContract
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	logCloser, err := observability.Init(observability.LogOptions{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Output: logOut,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })
	a.logger = observability.WithFields("service", observability.ServiceName, "version", version)

	if cfg.TelemetryDir != "" {
		shutdown, err := observability.InitTelemetry(ctx, cfg.TelemetryDir, version)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	c := contract.Default()
	if cfg.ContractPath != "" {
		if c, err = contract.Load(cfg.ContractPath); err != nil {
			a.close(ctx)
			return nil, err
		}
	}
	a.contracts = contract.NewStore(c)

	completion, err := newCompletionClient(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	engine := newRenderEngine(cfg, a.logger)
	if closer, ok := engine.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return closer.Close() })
	}

	a.svc = conversation.NewService(conversation.Deps{
		Completion: completion,
		Renderer:   render.NewAdapter(engine, cfg.RenderTimeout),
		Contract:   a.contracts,
	}, memory.NewSessionStore[*conversation.Controller]())

	a.logger.Info("mermaidbot configured",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"renderer", cfg.Renderer,
		"contract_version", c.Version,
	)
	return a, nil
}

func newCompletionClient(ctx context.Context, cfg *config.Config) (domain.CompletionClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:    cfg.APIKey,
			ModelName: cfg.ModelName,
			Timeout:   cfg.CompletionTimeout,
		})
	case config.ProviderVertex:
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{
			Project:   cfg.GCPProjectID,
			Location:  cfg.GCPLocation,
			ModelName: cfg.ModelName,
			Timeout:   cfg.CompletionTimeout,
		})
	case config.ProviderOllama:
		return llm.NewOllamaClient(cfg.OllamaURL, cfg.ModelName, cfg.CompletionTimeout), nil
	case config.ProviderMock:
		return llm.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newRenderEngine(cfg *config.Config, logger *slog.Logger) render.Engine {
	switch cfg.Renderer {
	case config.RendererBrowser:
		return render.NewBrowserEngine(render.BrowserConfig{
			MermaidJSURL: cfg.MermaidJSURL,
			Bin:          cfg.BrowserBin,
			ControlURL:   cfg.BrowserControl,
		}, logger)
	case config.RendererKroki:
		return render.NewKrokiEngine(cfg.KrokiURL, cfg.RenderTimeout)
	default:
		return render.NopEngine{}
	}
}

// close shuts down sessions first, then everything else in reverse order.
func (a *app) close(ctx context.Context) error {
	if a.svc != nil {
		a.svc.Shutdown()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
