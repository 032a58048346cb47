package paystack

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSecretKey  = errors.New("paystack secret key is required")
	ErrRequestFailed     = errors.New("paystack request failed")
	ErrInvalidResponse   = errors.New("invalid paystack response")
	ErrCircuitOpen       = errors.New("paystack circuit breaker is open")
	ErrMissingReference  = errors.New("transaction reference is required")
	ErrMissingEmail      = errors.New("customer email is required")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrMissingAuthCode   = errors.New("authorization code is required")
	ErrMissingSubCode    = errors.New("subscription code is required")
	ErrMissingPlan       = errors.New("customer and plan codes are required")
	ErrMalformedEvent    = errors.New("malformed paystack event")
	ErrTransactionFailed = errors.New("paystack transaction was not successful")
)

// APIError is returned when Paystack answers with a non-2xx status or status=false.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack %s: %d %s", e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsAPIError reports whether err carries an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsDeclined reports whether err is a definitive refusal of a charge rather
// than a transport or availability problem.
func IsDeclined(err error) bool {
	if errors.Is(err, ErrTransactionFailed) {
		return true
	}
	if apiErr, ok := IsAPIError(err); ok {
		return !apiErr.Temporary()
	}
	return false
}
