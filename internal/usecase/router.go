package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/internal/services/downstream"
	applogger "RecoGateway/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Reasons for serving the placeholder rationale.
const (
	RationaleFlagOff = "flag_off"
	RationaleFailed  = "rationale_failed"
)

// RouterConfig holds the orchestration policy.
type RouterConfig struct {
	RequestTimeout      time.Duration // end-to-end budget for one orchestration
	SignalsRetryBackoff time.Duration // pause before the single signals retry after a timeout
	ValidationReserve   time.Duration // held back from the rationale call for the validating stage
	RationaleFlag       string
	MarketDataURL       string // forwarded to the recommender when set
}

// Recommendation is a finished orchestration. Body is the validated serialization of Merged and
// is what gets written to the caller.
type Recommendation struct {
	Merged          models.MergedRecommendation
	Body            []byte
	RationaleReason string // empty when the rationale was generated
}

// Router runs INIT → GATHERING_MARKET → SCORING → ENRICHING → VALIDATING → DONE | FAILED
// once per request. Every failure is a *models.StageError.
type Router struct {
	analytics   service.OptionsAnalytics
	signals     service.SignalsProvider
	recommender service.Recommender
	rationale   service.RationaleGenerator
	flags       service.FeatureFlags
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	cfg         RouterConfig
}

func NewRouter(
	analytics service.OptionsAnalytics,
	signals service.SignalsProvider,
	recommender service.Recommender,
	rationale service.RationaleGenerator,
	flags service.FeatureFlags,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	cfg RouterConfig,
) *Router {
	if logger == nil {
		logger = applogger.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 4 * time.Second
	}
	if cfg.ValidationReserve <= 0 {
		cfg.ValidationReserve = 100 * time.Millisecond
	}
	if cfg.RationaleFlag == "" {
		cfg.RationaleFlag = "recommendation-rag"
	}
	return &Router{
		analytics:   analytics,
		signals:     signals,
		recommender: recommender,
		rationale:   rationale,
		flags:       flags,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Recommend orchestrates one request for the verified user.
func (r *Router) Recommend(ctx context.Context, userID string, req models.RecommendationRequest) (*Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	chain, signals, err := r.gatherMarket(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := r.score(ctx, userID, req, chain, signals)
	if err != nil {
		return nil, err
	}

	rationale, reason, err := r.enrich(ctx, userID, req.Symbol, raw, signals)
	if err != nil {
		return nil, err
	}

	return r.validate(ctx, raw, rationale, reason)
}

func (r *Router) gatherMarket(ctx context.Context, req models.RecommendationRequest) (models.ChainSnapshot, models.SignalSnapshot, error) {
	defer r.observe(models.StageGatheringMarket, time.Now())

	var (
		chain   models.ChainSnapshot
		signals models.SignalSnapshot
	)
	// The first failure cancels gctx, which aborts the sibling call.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chain, err = r.analytics.Screen(gctx, req)
		return err
	})
	g.Go(func() error {
		var err error
		signals, err = r.snapshotWithRetry(gctx, req.Symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, r.fail(ctx, models.StageGatheringMarket, err)
	}
	return chain, signals, nil
}

// snapshotWithRetry retries the idempotent signals GET once after a timeout.
func (r *Router) snapshotWithRetry(ctx context.Context, symbol string) (models.SignalSnapshot, error) {
	snap, err := r.signals.Snapshot(ctx, symbol)
	if err == nil || !downstream.IsTimeout(err) {
		return snap, err
	}
	r.logger.Debug("signals snapshot timed out, retrying once", applogger.String("symbol", symbol))
	select {
	case <-time.After(r.cfg.SignalsRetryBackoff):
	case <-ctx.Done():
		return nil, err
	}
	return r.signals.Snapshot(ctx, symbol)
}

func (r *Router) score(ctx context.Context, userID string, req models.RecommendationRequest, chain models.ChainSnapshot, signals models.SignalSnapshot) (*models.RawRecommendation, error) {
	defer r.observe(models.StageScoring, time.Now())

	raw, err := r.recommender.Score(ctx, models.ScorePayload{
		UserID:        userID,
		ChainSnapshot: chain,
		Signals:       signals,
		Request:       req,
		MarketDataURL: r.cfg.MarketDataURL,
	})
	if err != nil {
		return nil, r.fail(ctx, models.StageScoring, err)
	}
	return raw, nil
}

// enrich is the only stage that recovers locally: a failed rationale call degrades to the
// placeholder. The call ends ValidationReserve before the request deadline, so only a budget
// already spent on entry makes this stage fatal.
func (r *Router) enrich(ctx context.Context, userID, symbol string, raw *models.RawRecommendation, signals models.SignalSnapshot) (models.Rationale, string, error) {
	defer r.observe(models.StageEnriching, time.Now())

	if err := ctx.Err(); err != nil {
		return models.Rationale{}, "", r.fail(ctx, models.StageEnriching, err)
	}
	if !r.flags.BoolVariation(ctx, r.cfg.RationaleFlag, userID, true) {
		return models.PlaceholderRationale(), RationaleFlagOff, nil
	}

	gctx := ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		gctx, cancel = context.WithDeadline(ctx, deadline.Add(-r.cfg.ValidationReserve))
		defer cancel()
	}
	rationale, err := r.rationale.Generate(gctx, models.RationalePayload{
		UserID:         userID,
		Symbol:         symbol,
		Recommendation: raw,
		Signals:        signals,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Rationale{}, "", r.fail(ctx, models.StageEnriching, err)
		}
		r.logger.Warn("rationale unavailable, serving placeholder",
			applogger.String("user_id", userID),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		if r.metrics != nil {
			r.metrics.RecordRationaleDegraded(RationaleFailed)
		}
		return models.PlaceholderRationale(), RationaleFailed, nil
	}
	return *rationale, "", nil
}

func (r *Router) validate(ctx context.Context, raw *models.RawRecommendation, rationale models.Rationale, reason string) (*Recommendation, error) {
	defer r.observe(models.StageValidating, time.Now())

	merged := models.MergedRecommendation{RawRecommendation: *raw, Rationale: rationale}
	body, err := json.Marshal(merged)
	if err == nil {
		err = ValidateResponse(body)
	}
	if err != nil {
		return nil, r.fail(ctx, models.StageValidating, err)
	}
	if ctx.Err() != nil {
		return nil, r.fail(ctx, models.StageValidating, ctx.Err())
	}
	return &Recommendation{Merged: merged, Body: body, RationaleReason: reason}, nil
}

// fail converts err into the StageError reported to the caller. An expired request deadline
// wins over whatever the in-flight call reported.
func (r *Router) fail(ctx context.Context, stage models.Stage, err error) *models.StageError {
	se := &models.StageError{Stage: stage, Err: err}
	var de *downstream.Error
	switch {
	case ctx.Err() != nil:
		se.Kind = models.KindRequestTimeout
		se.Message = "request deadline exceeded"
	case errors.As(err, &de):
		se.Kind = de.Kind
		se.Service = de.Service
		se.Message = downstreamMessage(de)
	case stage == models.StageValidating:
		se.Kind = models.KindValidation
		se.Message = "recommendation failed response validation"
	default:
		se.Kind = models.KindDownstreamUnavailable
		se.Message = fmt.Sprintf("%s stage failed", stage)
	}
	return se
}

// downstreamMessage names the service and failure, never its address or body.
func downstreamMessage(de *downstream.Error) string {
	switch de.Kind {
	case models.KindDownstreamTimeout:
		return fmt.Sprintf("%s service timed out", de.Service)
	case models.KindDownstreamShape:
		return fmt.Sprintf("%s service returned an unexpected response", de.Service)
	default:
		if de.Status != 0 {
			return fmt.Sprintf("%s service responded with status %d", de.Service, de.Status)
		}
		return fmt.Sprintf("%s service unavailable", de.Service)
	}
}

func (r *Router) observe(stage models.Stage, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordStage(stage, time.Since(start))
	}
}
