package downstream

import (
	"context"
	"encoding/json"
	"fmt"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
)

// RecommenderClient calls POST {recommender}/score.
type RecommenderClient struct {
	base *httpServiceBase
}

var _ service.Recommender = (*RecommenderClient)(nil)

func NewRecommenderClient(ep config.ServiceEndpoint, metrics domrepo.Metrics, opts ...xhttp.ClientOption) *RecommenderClient {
	return &RecommenderClient{base: newHTTPServiceBase(ServiceRecommender, ep, metrics, opts...)}
}

func (c *RecommenderClient) Score(ctx context.Context, payload models.ScorePayload) (*models.RawRecommendation, error) {
	body, err := c.base.call(ctx, xhttp.MethodPost, "/score", payload, rawRecommendationSchema)
	if err != nil {
		return nil, err
	}
	var rec models.RawRecommendation
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, shapeError(ServiceRecommender, fmt.Errorf("decode recommendation: %w", err))
	}
	return &rec, nil
}
