package subscription

import (
	"context"

	"github.com/codeabuu/pdfworld/pkg/paystack"
)

// Gateway is the payment gateway client the engine talks to.
// *paystack.Client satisfies it.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
	ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (*paystack.Transaction, error)
	Refund(ctx context.Context, req paystack.RefundRequest) (*paystack.Refund, error)
	CreateSubscription(ctx context.Context, req paystack.CreateSubscriptionRequest) (*paystack.Subscription, error)
	DisableSubscription(ctx context.Context, code, emailToken string) error
}

var _ Gateway = (*paystack.Client)(nil)
