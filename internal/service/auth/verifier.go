// Package auth verifies bearer tokens against the identity provider's JWKS.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"RecoGateway/internal/domain/models"
	"RecoGateway/internal/domain/service"
	applogger "RecoGateway/pkg/logger"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrMissingSubject = errors.New("token has no subject")
)

// Config describes the trusted signing authority.
type Config struct {
	JWKSURI           string
	Issuer            string
	Audience          string
	RequestsPerMinute int           // cap on JWKS refreshes triggered by unknown key ids
	RefreshInterval   time.Duration // background refresh of the whole key set
	HTTPTimeout       time.Duration
}

// Verifier checks RS256 signatures, exact issuer and audience, and a required expiry.
type Verifier struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

var _ service.TokenVerifier = (*Verifier)(nil)

func NewVerifier(kf jwt.Keyfunc, issuer, audience string) *Verifier {
	return &Verifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
		keyfunc: kf,
	}
}

// NewJWKSVerifier fetches the key set once and keeps it fresh for the lifetime of ctx.
func NewJWKSVerifier(ctx context.Context, cfg Config, logger *applogger.Logger) (*Verifier, error) {
	kf, err := NewJWKSKeyfunc(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewVerifier(kf.Keyfunc, cfg.Issuer, cfg.Audience), nil
}

// NewJWKSKeyfunc builds a cached JWKS client. Unknown key ids trigger a refresh at most
// RequestsPerMinute times per minute; callers never wait for the limiter.
func NewJWKSKeyfunc(ctx context.Context, cfg Config, logger *applogger.Logger) (keyfunc.Keyfunc, error) {
	if logger == nil {
		logger = applogger.Nop()
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	httpTimeout := cfg.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 5 * time.Second
	}

	jwksURL, err := url.Parse(cfg.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("jwks storage: %w", err)
	}
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		HTTPTimeout:     httpTimeout,
		RefreshInterval: cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Warn("jwks refresh failed", applogger.String("jwks_uri", cfg.JWKSURI), applogger.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks storage: %w", err)
	}

	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.JWKSURI: storage},
		RefreshUnknownKID: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		RateLimitWaitMax:  time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: client})
	if err != nil {
		return nil, fmt.Errorf("jwks keyfunc: %w", err)
	}
	return kf, nil
}

// Verify parses raw and returns its principal. Every failure is an authentication failure.
func (v *Verifier) Verify(_ context.Context, raw string) (*models.Principal, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyfunc); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return &models.Principal{Subject: claims.Subject, Issuer: claims.Issuer}, nil
}

// ExtractToken reads the bearer token from the Authorization header, falling back to the named
// cookie. A well-formed header always wins over the cookie.
func ExtractToken(r *http.Request, cookieName string) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token, nil
			}
		}
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrMissingToken
}
