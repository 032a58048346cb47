package paystack

import (
	"context"
	"net/http"
	"net/url"
)

// InitializeTransaction creates a hosted payment page and returns its URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.Email == "" {
		return nil, ErrMissingEmail
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}

	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the authoritative state of a transaction.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, ErrMissingReference
	}

	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeAuthorization charges a saved reusable card. A response for a
// transaction that did not succeed is returned together with ErrTransactionFailed.
func (c *Client) ChargeAuthorization(ctx context.Context, req ChargeRequest) (*Transaction, error) {
	if req.Email == "" {
		return nil, ErrMissingEmail
	}
	if req.AuthorizationCode == "" {
		return nil, ErrMissingAuthCode
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var out Transaction
	if err := c.do(ctx, http.MethodPost, "/transaction/charge_authorization", req, &out); err != nil {
		return nil, err
	}
	if !out.Succeeded() {
		return &out, ErrTransactionFailed
	}
	return &out, nil
}

// Refund refunds a settled transaction.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.Transaction == "" {
		return nil, ErrMissingReference
	}

	var out Refund
	if err := c.do(ctx, http.MethodPost, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
