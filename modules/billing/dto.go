package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/subscription"
)

type checkoutResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
}

func toCheckout(c *subscription.Checkout) checkoutResponse {
	return checkoutResponse{
		AuthorizationURL: c.AuthorizationURL,
		AccessCode:       c.AccessCode,
		Reference:        c.Reference,
		Amount:           c.Amount.StringFixed(2),
		Currency:         c.Currency,
	}
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

func toEligibility(e subscription.Eligibility) eligibilityResponse {
	return eligibilityResponse{
		Eligible: e.Eligible,
		Reason:   string(e.Reason),
		Message:  e.Message,
	}
}

type statusResponse struct {
	HasAccess          bool       `json:"has_access"`
	Status             string     `json:"status"`
	Plan               string     `json:"plan,omitempty"`
	Amount             string     `json:"amount,omitempty"`
	AmountDisplay      string     `json:"amount_display,omitempty"`
	InTrial            bool       `json:"in_trial"`
	TrialHasEnded      bool       `json:"trial_has_ended"`
	TrialUsed          bool       `json:"trial_used"`
	TrialStart         *time.Time `json:"trial_start,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	SubscriptionCode   string     `json:"subscription_code,omitempty"`
	PaymentMethodID    *uuid.UUID `json:"payment_method_id,omitempty"`
}

func toStatus(s subscription.Snapshot) statusResponse {
	out := statusResponse{
		HasAccess:          s.HasAccess,
		Status:             string(s.Status),
		Plan:               string(s.Plan),
		AmountDisplay:      s.AmountDisplay,
		InTrial:            s.InTrial,
		TrialHasEnded:      s.TrialHasEnded,
		TrialUsed:          s.TrialUsed,
		TrialStart:         s.TrialStart,
		TrialEnd:           s.TrialEnd,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CanceledAt:         s.CanceledAt,
		SubscriptionCode:   s.SubscriptionCode,
		PaymentMethodID:    s.PaymentMethodID,
	}
	if s.Status != subscription.StatusNone {
		out.Amount = s.Amount.StringFixed(2)
	}
	return out
}

// cardResponse never exposes the authorization code.
type cardResponse struct {
	ID        uuid.UUID `json:"id"`
	Last4     string    `json:"last4"`
	CardType  string    `json:"card_type"`
	Bank      string    `json:"bank"`
	ExpMonth  int       `json:"exp_month"`
	ExpYear   int       `json:"exp_year"`
	Reusable  bool      `json:"reusable"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

func toCard(pm subscription.PaymentMethod) cardResponse {
	return cardResponse{
		ID:        pm.ID,
		Last4:     pm.Last4,
		CardType:  pm.CardType,
		Bank:      pm.Bank,
		ExpMonth:  pm.ExpMonth,
		ExpYear:   pm.ExpYear,
		Reusable:  pm.Reusable,
		IsDefault: pm.IsDefault,
		CreatedAt: pm.CreatedAt,
	}
}

func toCards(methods []subscription.PaymentMethod) []cardResponse {
	out := make([]cardResponse, 0, len(methods))
	for _, pm := range methods {
		out = append(out, toCard(pm))
	}
	return out
}

type webhookResponse struct {
	Event   string `json:"event,omitempty"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}
