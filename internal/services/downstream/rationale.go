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

// RationaleClient calls POST {orchestrator}/rationale.
type RationaleClient struct {
	base *httpServiceBase
}

var _ service.RationaleGenerator = (*RationaleClient)(nil)

func NewRationaleClient(ep config.ServiceEndpoint, metrics domrepo.Metrics, opts ...xhttp.ClientOption) *RationaleClient {
	return &RationaleClient{base: newHTTPServiceBase(ServiceRationale, ep, metrics, opts...)}
}

func (c *RationaleClient) Generate(ctx context.Context, payload models.RationalePayload) (*models.Rationale, error) {
	body, err := c.base.call(ctx, xhttp.MethodPost, "/rationale", payload, rationaleSchema)
	if err != nil {
		return nil, err
	}
	var r models.Rationale
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, shapeError(ServiceRationale, fmt.Errorf("decode rationale: %w", err))
	}
	return &r, nil
}
