package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"RecoGateway/internal/domain/models"
	domrepo "RecoGateway/internal/domain/repository"
	"RecoGateway/internal/domain/service"
	"RecoGateway/internal/middleware"
	"RecoGateway/internal/service/ratelimit"
	"RecoGateway/internal/usecase"
	xhttp "RecoGateway/pkg/http"
	xmw "RecoGateway/pkg/http/middleware"
	xlogger "RecoGateway/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Orchestrator produces one merged recommendation per call.
type Orchestrator interface {
	Recommend(ctx context.Context, userID string, req models.RecommendationRequest) (*usecase.Recommendation, error)
}

// Auditor receives one event per authenticated request.
type Auditor interface {
	Record(ev *models.AuditEvent)
}

// RecommendationHandler serves POST /recommendations. The checks run in a fixed order:
// authentication, body validation, rate limits, orchestration.
type RecommendationHandler struct {
	logger  *xlogger.Logger
	router  Orchestrator
	limiter service.RateLimiter
	auth    echo.MiddlewareFunc
	audit   Auditor
	metrics domrepo.Metrics
}

func NewRecommendationHandler(
	logger *xlogger.Logger,
	router Orchestrator,
	limiter service.RateLimiter,
	auth echo.MiddlewareFunc,
	audit Auditor,
	metrics domrepo.Metrics,
) *RecommendationHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &RecommendationHandler{
		logger:  logger,
		router:  router,
		limiter: limiter,
		auth:    auth,
		audit:   audit,
		metrics: metrics,
	}
}

func (h *RecommendationHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/recommendations", h.Recommend, h.auth)
}

func (h *RecommendationHandler) Recommend(c echo.Context) error {
	start := time.Now()
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.logger.Error("recommendations route reached without a principal")
		return xhttp.AppErrorResponse(c, xhttp.InternalError("missing principal"))
	}
	ev := &models.AuditEvent{RequestID: xmw.GetRequestID(c), UserID: p.Subject}

	req := &models.RecommendationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		se := models.NewStageError(models.StageInput, models.KindValidation, xhttp.ValidationSummary(verr), nil)
		return h.fail(c, ev, start, se)
	}
	req.Normalize()
	if req.Symbol == "" {
		se := models.NewStageError(models.StageInput, models.KindValidation, "symbol is required", nil)
		return h.fail(c, ev, start, se)
	}
	ev.Symbol = req.Symbol

	ctx := c.Request().Context()
	if err := h.limiter.Allow(ctx, p.Subject, req.Symbol); err != nil {
		var ex *ratelimit.ExceededError
		if errors.As(err, &ex) {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(ex.Window.Seconds())))
		}
		se := models.NewStageError(models.StagePolicy, models.KindRateLimit, err.Error(), err)
		return h.fail(c, ev, start, se)
	}

	rec, err := h.router.Recommend(ctx, p.Subject, *req)
	if err != nil {
		var se *models.StageError
		if !errors.As(err, &se) {
			se = models.NewStageError(models.StageGatheringMarket, models.KindDownstreamUnavailable, "recommendation failed", err)
		}
		return h.fail(c, ev, start, se)
	}

	ev.Outcome = models.OutcomeSuccess
	ev.RationaleDegraded = rec.RationaleReason == usecase.RationaleFailed
	h.logger.Debug("recommendation served",
		xlogger.String("request_id", ev.RequestID),
		xlogger.String("symbol", ev.Symbol),
		xlogger.String("direction", rec.Merged.Decision.Direction),
		xlogger.Float64("confidence", rec.Merged.Confidence),
		xlogger.Bool("rationale_degraded", ev.RationaleDegraded),
	)
	h.finish(ev, start, "")
	return xhttp.RawJSONResponse(c, http.StatusOK, rec.Body)
}

func (h *RecommendationHandler) fail(c echo.Context, ev *models.AuditEvent, start time.Time, se *models.StageError) error {
	fields := []xlogger.Field{
		xlogger.String("request_id", ev.RequestID),
		xlogger.String("user_id", ev.UserID),
		xlogger.String("symbol", ev.Symbol),
		xlogger.String("stage", string(se.Stage)),
		xlogger.String("kind", string(se.Kind)),
	}
	if se.Service != "" {
		fields = append(fields, xlogger.String("service", se.Service))
	}
	if se.Err != nil {
		fields = append(fields, xlogger.Error(se.Err))
	}
	switch se.Stage {
	case models.StageInput, models.StagePolicy:
		ev.Outcome = models.OutcomeRejected
		h.logger.Info("recommendation rejected", fields...)
	default:
		ev.Outcome = models.OutcomeFailed
		h.logger.Error("recommendation failed", fields...)
	}
	ev.Stage = se.Stage
	ev.Kind = se.Kind
	h.finish(ev, start, se.Kind)
	return xhttp.ErrorResponse(c, se.HTTPStatus(), se.Body())
}

func (h *RecommendationHandler) finish(ev *models.AuditEvent, start time.Time, kind models.ErrorKind) {
	ev.DurationMs = time.Since(start).Milliseconds()
	if h.metrics != nil {
		h.metrics.RecordRequest(ev.Outcome, kind)
	}
	if h.audit != nil {
		h.audit.Record(ev)
	}
}
