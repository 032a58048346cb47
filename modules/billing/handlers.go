package billing

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/handler"
	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/sanitizer"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/pkg/validator"
)

const maxReferenceLength = 100

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9._=-]+$`)

type emailRequest struct {
	Email string `json:"email"`
}

type startPaidRequest struct {
	Email string                `json:"email"`
	Plan  subscription.PlanType `json:"plan"`
}

type referenceRequest struct {
	Reference string `json:"reference"`
}

type cardRequest struct {
	ID uuid.UUID `path:"id"`
}

func validateReference(ref string) error {
	return validator.Apply(
		validator.RequiredString("reference", ref),
		validator.MaxLenString("reference", ref, maxReferenceLength),
		validator.Matches("reference", ref, referencePattern, "a gateway reference"),
	)
}

func (m *module) trialEligibility(ctx handler.Context, _ struct{}) handler.Response {
	el, err := m.svc.CheckTrialEligibility(ctx, callerID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toEligibility(el))
}

func (m *module) startTrial(ctx handler.Context, req emailRequest) handler.Response {
	checkout, err := m.svc.StartTrial(ctx, callerID(ctx), sanitizer.NormalizeEmail(req.Email))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toCheckout(checkout))
}

func (m *module) startPaid(ctx handler.Context, req startPaidRequest) handler.Response {
	checkout, err := m.svc.StartPaidSubscription(ctx, callerID(ctx), sanitizer.NormalizeEmail(req.Email), req.Plan)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toCheckout(checkout))
}

func (m *module) status(ctx handler.Context, _ struct{}) handler.Response {
	snap, err := m.svc.CheckSubscriptionStatus(ctx, callerID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toStatus(snap))
}

func (m *module) cancel(ctx handler.Context, _ struct{}) handler.Response {
	snap, err := m.svc.CancelSubscription(ctx, callerID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toStatus(snap))
}

func (m *module) verifyPayment(ctx handler.Context, req referenceRequest) handler.Response {
	if err := validateReference(req.Reference); err != nil {
		return handler.Fail(err)
	}
	snap, err := m.svc.VerifyPayment(ctx, callerID(ctx), req.Reference)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toStatus(snap))
}

func (m *module) listCards(ctx handler.Context, _ struct{}) handler.Response {
	methods, err := m.svc.ListPaymentMethods(ctx, callerID(ctx))
	if err != nil {
		return handler.Fail(err)
	}
	cards := toCards(methods)
	return handler.JSON(cards, handler.WithJSONMeta(map[string]any{"count": len(cards)}))
}

func (m *module) addCard(ctx handler.Context, req emailRequest) handler.Response {
	checkout, err := m.svc.InitializeCardAdd(ctx, callerID(ctx), sanitizer.NormalizeEmail(req.Email))
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toCheckout(checkout))
}

func (m *module) verifyCard(ctx handler.Context, req referenceRequest) handler.Response {
	if err := validateReference(req.Reference); err != nil {
		return handler.Fail(err)
	}
	pm, err := m.svc.VerifyCardAdd(ctx, callerID(ctx), req.Reference)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toCard(*pm))
}

func (m *module) setDefaultCard(ctx handler.Context, req cardRequest) handler.Response {
	if err := validator.Apply(validator.RequiredUUID("id", req.ID)); err != nil {
		return handler.Fail(err)
	}
	pm, err := m.svc.SetDefaultPaymentMethod(ctx, callerID(ctx), req.ID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(toCard(*pm))
}

func (m *module) removeCard(ctx handler.Context, req cardRequest) handler.Response {
	if err := validator.Apply(validator.RequiredUUID("id", req.ID)); err != nil {
		return handler.Fail(err)
	}
	if err := m.svc.RemovePaymentMethod(ctx, callerID(ctx), req.ID); err != nil {
		return handler.Fail(err)
	}
	m.log.InfoContext(ctx, "payment method removed",
		logger.PaymentMethodID(req.ID),
		logger.Component("cards"),
	)
	return handler.Empty()
}
