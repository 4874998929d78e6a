package services

import (
	"errors"
	"net/http"
)

// Service-level error taxonomy. Handlers translate these to HTTP codes and
// {error_code, message} bodies.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountAlreadyExists   = errors.New("account with this email already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUpstreamUnavailable    = errors.New("upstream provider unavailable")
	ErrReconciliationConflict = errors.New("internal and upstream state diverged")
	ErrQuoteExpired           = errors.New("pricing quote expired")
	ErrQuoteConsumed          = errors.New("pricing quote already consumed")
	ErrQuoteNotFound          = errors.New("pricing quote not found")
	ErrInstanceNotFound       = errors.New("instance not found")
	ErrGPUNotOffered          = errors.New("gpu type not offered in region")
	ErrOptimisticLock         = errors.New("data has been modified concurrently, please retry")
)

// ErrorCode maps a service error to the API error_code string.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		return "INSUFFICIENT_CREDITS"
	case errors.Is(err, ErrInvalidStateTransition):
		return "INVALID_STATE_TRANSITION"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, ErrReconciliationConflict):
		return "RECONCILIATION_CONFLICT"
	case errors.Is(err, ErrQuoteExpired):
		return "QUOTE_EXPIRED"
	case errors.Is(err, ErrQuoteConsumed), errors.Is(err, ErrGPUNotOffered):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrQuoteNotFound), errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrAccountNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidCredentials):
		return "AUTH_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps a service error to the status code its API code carries.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case "VALIDATION_ERROR":
		return http.StatusBadRequest
	case "AUTH_ERROR":
		return http.StatusUnauthorized
	case "INSUFFICIENT_CREDITS":
		return http.StatusPaymentRequired
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_STATE_TRANSITION", "RECONCILIATION_CONFLICT":
		return http.StatusConflict
	case "QUOTE_EXPIRED":
		return http.StatusGone
	case "UPSTREAM_UNAVAILABLE":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
