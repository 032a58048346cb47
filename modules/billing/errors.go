package billing

import (
	"errors"
	"net/http"

	"github.com/codeabuu/pdfworld/handler"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/pkg/validator"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{subscription.ErrAlreadyActive, http.StatusConflict},
	{subscription.ErrTrialUsed, http.StatusConflict},
	{subscription.ErrCardLimitReached, http.StatusConflict},
	{subscription.ErrPaymentMethodInUse, http.StatusConflict},
	{subscription.ErrInvalidTransition, http.StatusConflict},
	{subscription.ErrDuplicateAuthorization, http.StatusConflict},
	{subscription.ErrSubscriptionNotFound, http.StatusNotFound},
	{subscription.ErrPaymentMethodNotFound, http.StatusNotFound},
	{subscription.ErrPlanNotFound, http.StatusNotFound},
	{subscription.ErrNotReusable, http.StatusUnprocessableEntity},
	{subscription.ErrReferenceMismatch, http.StatusUnprocessableEntity},
	{subscription.ErrPaymentNotSuccessful, http.StatusPaymentRequired},
	{subscription.ErrGateway, http.StatusBadGateway},
	{subscription.ErrInvalidSignature, http.StatusUnauthorized},
	{subscription.ErrMalformedPayload, http.StatusBadRequest},
}

// Classify maps billing errors to HTTP errors. Clients only ever see the
// sentinel message, never the wrapped cause. Unrecognised errors are left to
// the generic 500 rendering.
func Classify(err error) (error, bool) {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		out := handler.NewValidationError()
		for _, e := range ve {
			out.Add(e.Field, e.Message)
		}
		return out, true
	}

	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			code := subscription.Code(e.err)
			return handler.NewHTTPError(e.status, string(code)).WithMessage(e.err.Error()), true
		}
	}
	return nil, false
}
