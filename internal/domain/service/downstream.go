package service

import (
	"context"

	"RecoGateway/internal/domain/models"
)

// OptionsAnalytics screens the option chain for a request.
type OptionsAnalytics interface {
	Screen(ctx context.Context, req models.RecommendationRequest) (models.ChainSnapshot, error)
}

// SignalsProvider returns the current signal layers for one symbol.
type SignalsProvider interface {
	Snapshot(ctx context.Context, symbol string) (models.SignalSnapshot, error)
}

// Recommender scores the market inputs into a decision.
type Recommender interface {
	Score(ctx context.Context, payload models.ScorePayload) (*models.RawRecommendation, error)
}

// RationaleGenerator writes the narrative explanation for a scored recommendation.
type RationaleGenerator interface {
	Generate(ctx context.Context, payload models.RationalePayload) (*models.Rationale, error)
}

// FeatureFlags evaluates boolean flags per user key. Implementations always return a value;
// fallback is used whenever the provider cannot answer.
type FeatureFlags interface {
	BoolVariation(ctx context.Context, flagKey, userKey string, fallback bool) bool
	Mode() string
}
