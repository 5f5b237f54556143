package downstream

import (
	"context"
	"net/url"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
)

// SignalsClient calls GET {signals}/snapshot/{symbol}.
type SignalsClient struct {
	base *httpServiceBase
}

var _ service.SignalsProvider = (*SignalsClient)(nil)

func NewSignalsClient(ep config.ServiceEndpoint, metrics domrepo.Metrics, opts ...xhttp.ClientOption) *SignalsClient {
	return &SignalsClient{base: newHTTPServiceBase(ServiceSignals, ep, metrics, opts...)}
}

func (c *SignalsClient) Snapshot(ctx context.Context, symbol string) (models.SignalSnapshot, error) {
	body, err := c.base.call(ctx, xhttp.MethodGet, "/snapshot/"+url.PathEscape(symbol), nil, signalSnapshotSchema)
	if err != nil {
		return nil, err
	}
	return models.SignalSnapshot(body), nil
}
