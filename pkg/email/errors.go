package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("failed to send email")
	ErrInvalidConfig     = errors.New("invalid email config")
	ErrInvalidParams     = errors.New("invalid email params")

	// ErrDisabled is returned by New when no transport is configured.
	ErrDisabled = errors.New("email delivery disabled")
)
