package downstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
	"RecoGateway/pkg/schema"
)

// Service names used in errors, logs and metrics labels.
const (
	ServiceOptionsAnalytics = "options_analytics"
	ServiceSignals          = "signals"
	ServiceRecommender      = "recommender"
	ServiceRationale        = "rationale"
)

// httpServiceBase centralizes the one-call-one-deadline request flow shared by all clients.
// It never retries.
type httpServiceBase struct {
	name    string
	baseURL string
	timeout time.Duration
	client  *xhttp.Client
	metrics domrepo.Metrics
}

func newHTTPServiceBase(name string, ep config.ServiceEndpoint, metrics domrepo.Metrics, opts ...xhttp.ClientOption) *httpServiceBase {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &httpServiceBase{
		name:    name,
		baseURL: strings.TrimRight(ep.URL, "/"),
		timeout: timeout,
		client:  xhttp.NewClient(opts...),
		metrics: metrics,
	}
}

// call performs the request under the client's own deadline and checks the body against s.
// The returned bytes are the raw body as the service sent it.
func (b *httpServiceBase) call(ctx context.Context, method, path string, payload interface{}, s *schema.Schema) ([]byte, error) {
	if b.client == nil || b.baseURL == "" {
		return nil, fmt.Errorf("%s client not initialized", b.name)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var body []byte
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: method,
		URL:    b.baseURL + path,
		Body:   payload,
	}, &body)

	var derr *Error
	switch {
	case err != nil:
		derr = classify(b.name, fmt.Errorf("%s %s: %w", method, path, err))
	case s != nil:
		if verr := s.Validate(body); verr != nil {
			derr = shapeError(b.name, verr)
		}
	}
	if b.metrics != nil {
		b.metrics.RecordDownstream(b.name, resultLabel(derr))
	}
	if derr != nil {
		return nil, derr
	}
	return body, nil
}
