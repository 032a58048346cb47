package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/pkg/webhook"
)

func TestWebhookIngestor_Signature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	body := eventBody(t, paystack.EventChargeSuccess, trialCharge(userID, "trial-1", "AUTH_1").transaction())
	otherKey, err := webhook.Sign("sk_test_other", body)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":    "",
		"wrong key":  otherKey,
		"other body": sign(t, []byte(`{"event":"charge.success"}`)),
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ingestor.Ingest(context.Background(), body, sig)
			require.Error(t, err)
			assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
			assert.Equal(t, subscription.CodeUnauthorized, subscription.Code(err))
		})
	}

	// Nothing was written and the gateway was never called
	_, err = f.store.GetSubscription(context.Background(), userID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	methods, err := f.store.ListPaymentMethods(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, methods)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestWebhookIngestor_UppercaseSignatureAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.expectRefund("trial-up").Once()
	body := eventBody(t, paystack.EventChargeSuccess, trialCharge(userID, "trial-up", "AUTH_UP").transaction())

	sig := sign(t, body)
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 'a' + 'A'
		}
	}
	res, err := f.ingestor.Ingest(context.Background(), body, string(upper))
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
}

func TestWebhookIngestor_MalformedPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for name, body := range map[string][]byte{
		"not json":      []byte(`{"event":`),
		"missing event": []byte(`{"data":{}}`),
		"bad data":      []byte(`{"event":"charge.success","data":"nope"}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.ingestor.Ingest(context.Background(), body, sign(t, body))
			require.Error(t, err)
			assert.ErrorIs(t, err, subscription.ErrMalformedPayload)
			assert.Equal(t, subscription.CodeMalformed, subscription.Code(err))
		})
	}
}

func TestWebhookIngestor_UnknownEventIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := f.ingest(t, "transfer.success", map[string]any{"reference": "tr_1"})
	require.NoError(t, err)
	assert.Equal(t, "transfer.success", res.Event)
	assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)
}

func TestWebhookIngestor_TrialVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	sub := f.startTrial(t, userID, "AUTH_TRIAL")

	assert.Equal(t, subscription.StatusTrialing, sub.Status)
	assert.Equal(t, subscription.PlanTrial, sub.Plan)
	assert.True(t, sub.TrialUsed)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, f.clock.Now().Add(subscription.DefaultConfig().TrialDuration), *sub.TrialEnd)
	assert.Nil(t, sub.CurrentPeriodEnd)

	methods, err := f.svc.ListPaymentMethods(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].IsDefault)
	assert.Equal(t, "visa", methods[0].CardType)
	assert.Equal(t, 12, methods[0].ExpMonth)
	require.NotNil(t, sub.PaymentMethodID)
	assert.Equal(t, methods[0].ID, *sub.PaymentMethodID)
}

func TestWebhookIngestor_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	t.Run("paid charge", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		c := paidCharge(userID, "sub-1", "AUTH_PAID", subscription.PlanMonthly)

		first := f.deliver(t, c)
		require.Equal(t, subscription.OutcomeApplied, first.Outcome)
		end := *f.subscription(t, userID).CurrentPeriodEnd

		second := f.deliver(t, c)
		assert.Equal(t, subscription.OutcomeDuplicate, second.Outcome)

		sub := f.subscription(t, userID)
		assert.Equal(t, end, *sub.CurrentPeriodEnd)
		methods, err := f.store.ListPaymentMethods(context.Background(), userID)
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})

	t.Run("replay past the delivery cache", func(t *testing.T) {
		t.Parallel()
		// A fresh deduplicator per delivery forces the ledger to do the work
		f := newFixture(t, subscription.WithDeduplicator(forgetful{}))
		userID := uuid.New()
		c := paidCharge(userID, "sub-2", "AUTH_PAID_2", subscription.PlanYearly)

		f.deliver(t, c)
		end := *f.subscription(t, userID).CurrentPeriodEnd

		res := f.deliver(t, c)
		assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)
		assert.Equal(t, "replay", res.Reason)
		assert.Equal(t, end, *f.subscription(t, userID).CurrentPeriodEnd)

		// An older payment arriving after a newer one is still a replay
		f.deliver(t, paidCharge(userID, "sub-3", "AUTH_PAID_2", subscription.PlanYearly))
		extended := *f.subscription(t, userID).CurrentPeriodEnd
		f.deliver(t, c)
		assert.Equal(t, extended, *f.subscription(t, userID).CurrentPeriodEnd)

		methods, err := f.store.ListPaymentMethods(context.Background(), userID)
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})

	t.Run("trial refunded once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithDeduplicator(forgetful{}))
		userID := uuid.New()
		f.expectRefund("trial-r").Once()

		c := trialCharge(userID, "trial-r", "AUTH_R")
		f.deliver(t, c)
		f.deliver(t, c)
		f.deliver(t, c)

		f.gateway.AssertNumberOfCalls(t, "Refund", 1)
	})
}

func TestWebhookIngestor_PaidBeatsTrial(t *testing.T) {
	t.Parallel()

	t.Run("trial then paid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.expectRefund("trial-a").Once()

		f.deliver(t, trialCharge(userID, "trial-a", "AUTH_A"))
		f.deliver(t, paidCharge(userID, "sub-a", "AUTH_A", subscription.PlanMonthly))

		sub := f.subscription(t, userID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, subscription.PlanMonthly, sub.Plan)
		assert.True(t, sub.TrialUsed)
	})

	t.Run("paid then trial", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.expectRefund("trial-b").Once()

		f.deliver(t, paidCharge(userID, "sub-b", "AUTH_B", subscription.PlanMonthly))
		res := f.deliver(t, trialCharge(userID, "trial-b", "AUTH_B"))
		assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)

		sub := f.subscription(t, userID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, subscription.PlanMonthly, sub.Plan)
	})
}

func TestWebhookIngestor_UnresolvedUserAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := paidCharge(uuid.Nil, "sub-x", "AUTH_X", subscription.PlanMonthly)
	c.customer = "CUS_nobody"

	res := f.deliver(t, c)
	assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)
	assert.Equal(t, "user_not_resolved", res.Reason)
}

func TestWebhookIngestor_UnclassifiedChargeIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.deliver(t, charge{userID: uuid.New(), reference: "misc-1", authCode: "AUTH_M"})
	assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)
}

func TestWebhookIngestor_RecurringEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, subscription.WithDeduplicator(forgetful{}))
	ctx := context.Background()
	userID := uuid.New()
	customer := "CUS_" + userID.String()[:8]

	f.deliver(t, paidCharge(userID, "sub-r", "AUTH_REC", subscription.PlanMonthly))
	end := *f.subscription(t, userID).CurrentPeriodEnd

	// subscription.create links the gateway subscription
	res, err := f.ingest(t, paystack.EventSubscriptionCreate, map[string]any{
		"subscription_code": "SUB_abc",
		"email_token":       "tok_abc",
		"customer":          map[string]any{"customer_code": customer},
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
	sub := f.subscription(t, userID)
	assert.Equal(t, "SUB_abc", sub.SubscriptionCode)
	assert.Equal(t, "tok_abc", sub.EmailToken)

	// invoice.update paid renews once, however often it is delivered
	invoice := map[string]any{
		"invoice_code": "INV_1",
		"paid":         true,
		"status":       "success",
		"subscription": map[string]any{"subscription_code": "SUB_abc"},
		"customer":     map[string]any{"customer_code": customer},
		"transaction":  map[string]any{"reference": "renew-1", "status": "success"},
	}
	for range 2 {
		_, err = f.ingest(t, paystack.EventInvoiceUpdate, invoice)
		require.NoError(t, err)
	}
	sub = f.subscription(t, userID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, end.Add(30*24*time.Hour), *sub.CurrentPeriodEnd)

	// invoice.payment_failed leaves the row past due
	res, err = f.ingest(t, paystack.EventInvoicePaymentFailed, map[string]any{
		"invoice_code": "INV_2",
		"subscription": map[string]any{"subscription_code": "SUB_abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
	assert.Equal(t, subscription.StatusPastDue, f.subscription(t, userID).Status)

	// subscription.disable cancels
	res, err = f.ingest(t, paystack.EventSubscriptionDisable, map[string]any{"subscription_code": "SUB_abc"})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
	sub = f.subscription(t, userID)
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	// A code nobody owns is acknowledged
	res, err = f.ingest(t, paystack.EventSubscriptionDisable, map[string]any{"subscription_code": "SUB_unknown"})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)

	snap, err := f.svc.CheckSubscriptionStatus(ctx, userID)
	require.NoError(t, err)
	assert.False(t, snap.HasAccess)
}

func TestWebhookIngestor_InvoiceForUnknownSubscriptionIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event string
		data  map[string]any
	}{
		{
			name:  "paid invoice",
			event: paystack.EventInvoiceUpdate,
			data: map[string]any{
				"invoice_code": "INV_x",
				"paid":         true,
				"status":       "success",
				"transaction":  map[string]any{"reference": "renew-x", "status": "success"},
			},
		},
		{
			name:  "failed invoice",
			event: paystack.EventInvoicePaymentFailed,
			data:  map[string]any{"invoice_code": "INV_y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			userID := uuid.New()
			f.deliver(t, paidCharge(userID, "sub-known", "AUTH_KNOWN", subscription.PlanMonthly))
			before := *f.subscription(t, userID)

			// The customer is known but the subscription code is not
			tt.data["subscription"] = map[string]any{"subscription_code": "SUB_nobody"}
			tt.data["customer"] = map[string]any{"customer_code": "CUS_" + userID.String()[:8]}
			res, err := f.ingest(t, tt.event, tt.data)
			require.NoError(t, err)
			assert.Equal(t, subscription.OutcomeIgnored, res.Outcome)
			assert.Equal(t, "unknown_subscription", res.Reason)

			after := f.subscription(t, userID)
			assert.Equal(t, subscription.StatusActive, after.Status)
			assert.Equal(t, *before.CurrentPeriodEnd, *after.CurrentPeriodEnd)
			assert.Equal(t, before.LastPaymentRef, after.LastPaymentRef)
		})
	}
}

func TestWebhookIngestor_NotRenewAndInvoiceCreateIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, event := range []string{paystack.EventSubscriptionNotRenew, paystack.EventInvoiceCreate} {
		res, err := f.ingest(t, event, map[string]any{"subscription_code": "SUB_1"})
		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeIgnored, res.Outcome, event)
	}
}

func TestWebhookIngestor_RefundFailureAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.gateway.On("Refund", mock.Anything, mock.Anything).
		Return(nil, &paystack.APIError{StatusCode: 400, Message: "Transaction has been fully reversed"}).Once()

	res := f.deliver(t, trialCharge(userID, "trial-fail", "AUTH_F"))
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome, "refund failure never fails the webhook")
	assert.Equal(t, subscription.StatusTrialing, f.subscription(t, userID).Status)

	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, subscription.AlertRefundFailed, alerts[0].Kind)
	assert.Equal(t, "trial-fail", alerts[0].Reference)
	assert.Equal(t, userID, alerts[0].UserID)
}

func TestWebhookIngestor_StoreFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := &failingStore{MemoryStore: subscription.NewMemoryStore(), err: errors.New("connection reset")}
	gw := &MockGateway{}
	svc := subscription.NewService(store, gw, nil, subscription.Config{})
	ing := subscription.NewWebhookIngestor(svc, testSecret)

	body := eventBody(t, paystack.EventChargeSuccess, paidCharge(uuid.New(), "sub-f", "AUTH_S", subscription.PlanMonthly).transaction())
	res, err := ing.Ingest(context.Background(), body, sign(t, body))
	require.Error(t, err)
	assert.Equal(t, subscription.OutcomeFailed, res.Outcome)
	assert.Equal(t, subscription.CodeInternal, subscription.Code(err))

	// The failed delivery is not remembered, a retry is processed again
	store.err = nil
	res, err = ing.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, res.Outcome)
}

// forgetful never remembers a delivery.
type forgetful struct{}

func (forgetful) Seen(context.Context, string) (bool, error)        { return false, nil }
func (forgetful) Mark(context.Context, string, time.Duration) error { return nil }

// failingStore fails every unit of work while err is set.
type failingStore struct {
	*subscription.MemoryStore
	err error
}

func (s *failingStore) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx subscription.Tx) error) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Atomic(ctx, userID, fn)
}
