package paystack

import (
	"context"
	"net/http"
)

// CreateSubscription enrolls a customer on a Paystack plan using a saved authorization.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if req.Customer == "" || req.Plan == "" {
		return nil, ErrMissingPlan
	}

	var out Subscription
	if err := c.do(ctx, http.MethodPost, "/subscription", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableSubscription stops future charges for a recurring subscription.
func (c *Client) DisableSubscription(ctx context.Context, code, emailToken string) error {
	if code == "" {
		return ErrMissingSubCode
	}

	body := struct {
		Code  string `json:"code"`
		Token string `json:"token"`
	}{Code: code, Token: emailToken}

	return c.do(ctx, http.MethodPost, "/subscription/disable", body, nil)
}
