package service

import (
	"context"

	"RecoGateway/internal/domain/models"
)

// TokenVerifier turns a raw bearer token into a verified principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*models.Principal, error)
}

// RateLimiter admits or rejects one request for a user and symbol pair.
type RateLimiter interface {
	Allow(ctx context.Context, userID, symbol string) error
}
