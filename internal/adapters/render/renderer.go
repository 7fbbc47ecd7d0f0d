// Package render turns sanitized Mermaid source into SVG through a pluggable
// engine. Every failure, including a panicking engine, comes back as a
// syntax-error outcome.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/PabloGalante/mermaidbot/internal/diagram"
	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

const instrumentationName = "github.com/PabloGalante/mermaidbot/internal/adapters/render"

// Engine is the external rendering capability. Parse validates without
// producing output; Render returns SVG markup for the given element id.
type Engine interface {
	Parse(ctx context.Context, source string) error
	Render(ctx context.Context, id, source string) (string, error)
}

// Adapter implements domain.DiagramRenderer on top of an Engine.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	newID   func() string
}

func NewAdapter(engine Engine, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Adapter{
		engine:  engine,
		timeout: timeout,
		newID:   func() string { return "mermaid-" + uuid.NewString() },
	}
}

// Render implements domain.DiagramRenderer.
func (a *Adapter) Render(ctx context.Context, req domain.RenderRequest) (out domain.RenderOutcome) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "diagram.render")
	defer span.End()

	raw := req.RawSource
	if raw == "" {
		raw = req.Source
	}

	defer func() {
		if r := recover(); r != nil {
			out = domain.SyntaxErrorOutcome(fmt.Sprintf("renderer failed: %v", r), raw)
		}
		if !out.IsRendered() {
			span.SetStatus(codes.Error, out.Message)
		}
		recordRender(ctx, out.Kind)
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := diagram.Lint(req.Source); err != nil {
		return domain.SyntaxErrorOutcome(err.Error(), raw)
	}

	if err := a.engine.Parse(ctx, req.Source); err != nil {
		return domain.SyntaxErrorOutcome(errorMessage(err), raw)
	}

	id := a.newID()
	svg, err := a.engine.Render(ctx, id, req.Source)
	if err != nil {
		return domain.SyntaxErrorOutcome(errorMessage(err), raw)
	}
	if svg == "" {
		return domain.SyntaxErrorOutcome("renderer returned no markup", raw)
	}

	observability.LoggerFromContext(ctx).Debug("diagram rendered",
		"render_id", id,
		"svg_bytes", len(svg),
	)
	return domain.Rendered(id, svg)
}

func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "rendering timed out"
	}
	return err.Error()
}

func recordRender(ctx context.Context, kind domain.RenderKind) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"mermaidbot.renders",
		metric.WithDescription("Diagram render attempts by outcome"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
