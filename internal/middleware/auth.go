package middleware

import (
	"errors"

	"RecoGateway/internal/domain/models"
	"RecoGateway/internal/domain/service"
	"RecoGateway/internal/service/auth"
	xmw "RecoGateway/pkg/http/middleware"
	applogger "RecoGateway/pkg/logger"

	"github.com/labstack/echo/v4"
)

const principalKey = "principal"

// AuthOption configures the Authenticate middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	cookieName string
	logger     *applogger.Logger
}

// WithCookieName sets the cookie read when no Authorization header is present.
func WithCookieName(name string) AuthOption {
	return func(c *authConfig) {
		c.cookieName = name
	}
}

// WithLogger sets the logger for rejected credentials.
func WithLogger(l *applogger.Logger) AuthOption {
	return func(c *authConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Authenticate rejects the request with 401 unless it carries a valid bearer token. The verified
// principal is stored on the context for the handler.
func Authenticate(v service.TokenVerifier, opts ...AuthOption) echo.MiddlewareFunc {
	cfg := &authConfig{cookieName: "token", logger: applogger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := auth.ExtractToken(c.Request(), cfg.cookieName)
			var p *models.Principal
			if err == nil {
				p, err = v.Verify(c.Request().Context(), raw)
			}
			if err != nil {
				cfg.logger.Debug("authentication failed",
					applogger.String("request_id", xmw.GetRequestID(c)),
					applogger.Error(err),
				)
				msg := "invalid or expired token"
				if errors.Is(err, auth.ErrMissingToken) {
					msg = "missing bearer token"
				}
				se := models.NewStageError(models.StagePolicy, models.KindAuth, msg, err)
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="recommendations"`)
				return c.JSON(se.HTTPStatus(), se.Body())
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c echo.Context) (*models.Principal, bool) {
	p, ok := c.Get(principalKey).(*models.Principal)
	return p, ok && p != nil
}
