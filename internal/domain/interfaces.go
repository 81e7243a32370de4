package domain

import (
	"context"
)

// HedgeRatioEstimator fits the hedge ratio of a pair window.
// Implementations must return the same shape so they can be swapped by configuration.
type HedgeRatioEstimator interface {
	Estimate(series PairSeries) (HedgeRatio, error)
}

// IntentSink receives position intents from the orchestration layer.
type IntentSink interface {
	Emit(ctx context.Context, intent PositionIntent) error
}

// BarFeed defines the interface for sources that push bars into a sequencer
type BarFeed interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}
