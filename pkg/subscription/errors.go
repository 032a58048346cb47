package subscription

import (
	"errors"

	"github.com/codeabuu/pdfworld/pkg/validator"
)

var (
	ErrAlreadyActive          = errors.New("user already has an active subscription or trial")
	ErrTrialUsed              = errors.New("free trial has already been used")
	ErrCardLimitReached       = errors.New("maximum number of saved cards reached")
	ErrPaymentMethodInUse     = errors.New("payment method is used by a live subscription")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrPaymentMethodNotFound  = errors.New("payment method not found")
	ErrUserNotResolved        = errors.New("could not resolve user for gateway event")
	ErrPlanNotFound           = errors.New("subscription plan not found")
	ErrInvalidTransition      = errors.New("subscription cannot make this transition")
	ErrNotReusable            = errors.New("card authorization is not reusable")
	ErrDuplicateAuthorization = errors.New("authorization code belongs to another user")

	ErrPaymentNotSuccessful = errors.New("payment was not successful")
	ErrReferenceMismatch    = errors.New("transaction does not belong to this user")
	ErrGateway              = errors.New("payment gateway error")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")

	ErrInvalidCatalog = errors.New("invalid plan catalog")
)

// ErrorCode is the stable machine readable identity of a domain error.
type ErrorCode string

const (
	CodeAlreadyActive    ErrorCode = "ALREADY_ACTIVE"
	CodeTrialUsed        ErrorCode = "TRIAL_USED"
	CodeCardLimitReached ErrorCode = "CARD_LIMIT_REACHED"
	CodeInUse            ErrorCode = "IN_USE"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidation       ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodePaymentFailed    ErrorCode = "PAYMENT_FAILED"
	CodeGateway          ErrorCode = "GATEWAY_ERROR"
	CodeUnauthorized     ErrorCode = "INVALID_SIGNATURE"
	CodeMalformed        ErrorCode = "MALFORMED_PAYLOAD"
	CodeInternal         ErrorCode = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAlreadyActive, CodeAlreadyActive},
	{ErrTrialUsed, CodeTrialUsed},
	{ErrCardLimitReached, CodeCardLimitReached},
	{ErrPaymentMethodInUse, CodeInUse},
	{ErrSubscriptionNotFound, CodeNotFound},
	{ErrPaymentMethodNotFound, CodeNotFound},
	{ErrPlanNotFound, CodeNotFound},
	{ErrInvalidTransition, CodeConflict},
	{ErrDuplicateAuthorization, CodeConflict},
	{ErrNotReusable, CodeValidation},
	{ErrReferenceMismatch, CodeValidation},
	{ErrPaymentNotSuccessful, CodePaymentFailed},
	{ErrGateway, CodeGateway},
	{ErrInvalidSignature, CodeUnauthorized},
	{ErrMalformedPayload, CodeMalformed},
}

// Code classifies err. Anything not recognised is internal.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if validator.IsValidationError(err) {
		return CodeValidation
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsDomainError reports whether err is safe to show to the client as is.
func IsDomainError(err error) bool {
	code := Code(err)
	return code != "" && code != CodeInternal && code != CodeGateway
}
