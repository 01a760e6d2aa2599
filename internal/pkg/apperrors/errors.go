package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrRiskReject     ErrorType = "RISK_REJECT"
	ErrKillSwitch     ErrorType = "KILL_SWITCH"
	ErrDuplicate      ErrorType = "DUPLICATE_REQUEST"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrSanityBounds   ErrorType = "SANITY_BOUNDS"
	ErrModeForbidden  ErrorType = "MODE_FORBIDDEN"
	ErrBreakerOpen    ErrorType = "BREAKER_OPEN"
	ErrStaleData      ErrorType = "STALE_DATA"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrUpstream       ErrorType = "UPSTREAM_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewRiskReject(msg string) *AppError {
	return New(ErrRiskReject, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrRiskReject, ErrInvalidRequest, ErrSanityBounds:
		return http.StatusBadRequest
	case ErrDuplicate:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrKillSwitch, ErrModeForbidden:
		return http.StatusForbidden
	case ErrBreakerOpen, ErrStaleData:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrRiskReject:
		return "Check proposed size against risk limits."
	case ErrKillSwitch:
		return "Release the kill switch to resume submissions."
	case ErrDuplicate:
		return "The same opportunity was already submitted."
	case ErrBreakerOpen:
		return "Wait for the upstream endpoint to recover."
	default:
		return ""
	}
}
