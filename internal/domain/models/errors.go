package models

import (
	"fmt"
	"net/http"
)

// Stage names the orchestration step a failure happened in.
type Stage string

const (
	StagePolicy          Stage = "policy"
	StageInput           Stage = "input"
	StageGatheringMarket Stage = "gathering_market"
	StageScoring         Stage = "scoring"
	StageEnriching       Stage = "enriching"
	StageValidating      Stage = "validating"
)

// ErrorKind is the stable failure taxonomy exposed to callers.
type ErrorKind string

const (
	KindAuth                  ErrorKind = "auth_error"
	KindRateLimit             ErrorKind = "rate_limit_error"
	KindValidation            ErrorKind = "validation_error"
	KindDownstreamTimeout     ErrorKind = "downstream_timeout"
	KindDownstreamUnavailable ErrorKind = "downstream_unavailable"
	KindDownstreamShape       ErrorKind = "downstream_shape_error"
	KindRequestTimeout        ErrorKind = "request_timeout"
)

// HTTPStatus maps a kind to the status code returned on the inbound surface.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDownstreamTimeout, KindRequestTimeout:
		return http.StatusGatewayTimeout
	case KindDownstreamUnavailable, KindDownstreamShape:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// StageError is a failed request. Service and Err are for logs only; Body never includes them.
type StageError struct {
	Stage   Stage
	Kind    ErrorKind
	Service string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// HTTPStatus returns the status code for the response.
func (e *StageError) HTTPStatus() int {
	// An invalid merged response is a broken downstream contract, not bad caller input.
	if e.Stage == StageValidating {
		return http.StatusBadGateway
	}
	return e.Kind.HTTPStatus()
}

// ErrorBody is the wire shape of every failed request.
type ErrorBody struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *StageError) Body() ErrorBody {
	return ErrorBody{Stage: e.Stage, Kind: e.Kind, Message: e.Message}
}

func NewStageError(stage Stage, kind ErrorKind, message string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Message: message, Err: err}
}
