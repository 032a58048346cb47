package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrMissingSignature     = errors.New("webhook signature is missing")
	ErrSignatureMismatch    = errors.New("webhook signature mismatch")
	ErrPayloadTooLarge      = errors.New("webhook payload too large")
)

// IsAuthenticationError reports whether err means the sender could not be authenticated.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrSignatureMismatch)
}
