package downstream

import (
	"context"
	"encoding/json"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
)

// OptionsAnalyticsClient calls POST {analytics}/screen.
type OptionsAnalyticsClient struct {
	base *httpServiceBase
}

var _ service.OptionsAnalytics = (*OptionsAnalyticsClient)(nil)

func NewOptionsAnalyticsClient(ep config.ServiceEndpoint, metrics domrepo.Metrics, opts ...xhttp.ClientOption) *OptionsAnalyticsClient {
	return &OptionsAnalyticsClient{base: newHTTPServiceBase(ServiceOptionsAnalytics, ep, metrics, opts...)}
}

// Screen returns the contract shortlist for req. The snapshot is returned byte for byte.
func (c *OptionsAnalyticsClient) Screen(ctx context.Context, req models.RecommendationRequest) (models.ChainSnapshot, error) {
	body, err := c.base.call(ctx, xhttp.MethodPost, "/screen", req, chainSnapshotSchema)
	if err != nil {
		return nil, err
	}
	return models.ChainSnapshot(json.RawMessage(body)), nil
}
