package conversation

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

func recordTurn(ctx context.Context, outcome string) {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"mermaidbot.turns",
		metric.WithDescription("Conversation turns by outcome"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// logTurnFailure keeps the full provider detail in the log; the user only
// sees FailureMessage.
func logTurnFailure(log *slog.Logger, err error) {
	var (
		providerErr  *domain.ProviderError
		malformedErr *domain.MalformedResponseError
		phaseErr     *domain.InvalidPhaseError
	)
	switch {
	case errors.As(err, &providerErr):
		log.Error("completion provider failed", "provider", providerErr.Provider, "error", err)
	case errors.As(err, &malformedErr):
		log.Error("malformed completion response", "error", err, "raw", malformedErr.Raw)
	case errors.As(err, &phaseErr):
		log.Error("completion returned an invalid phase", "value", phaseErr.Value)
	default:
		log.Error("turn failed", "error", err)
	}
}
