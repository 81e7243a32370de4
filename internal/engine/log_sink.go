package engine

import (
	"context"
	"log/slog"

	"pairs_go/internal/domain"
)

// LogSink writes every intent to the structured log. It never fails.
type LogSink struct {
	Logger *slog.Logger // nil uses slog.Default()
}

// Emit logs one intent.
func (l LogSink) Emit(ctx context.Context, intent domain.PositionIntent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Position intent",
		slog.String("pair", intent.PairID),
		slog.String("id", intent.ID),
		slog.String("direction", intent.Direction.String()),
		slog.String("exposure_x", intent.TargetExposureX.String()),
		slog.String("exposure_y", intent.TargetExposureY.String()),
		slog.Float64("zscore", intent.ZScore),
		slog.String("reason", intent.Reason),
		slog.Time("ts", intent.Timestamp))
	return nil
}
