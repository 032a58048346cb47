package subscription_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/subscription"
)

const week = 7 * 24 * time.Hour

// seedTrial stores a trial that ended an hour ago, optionally with a card.
func seedTrial(t *testing.T, f *fixture, withCard bool) uuid.UUID {
	t.Helper()
	return seedTrialEnded(t, f, withCard, f.clock.Now().Add(-time.Hour))
}

func seedTrialEnded(t *testing.T, f *fixture, withCard bool, end time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	start := end.Add(-week)

	err := f.store.Atomic(ctx, userID, func(ctx context.Context, tx subscription.Tx) error {
		sub := &subscription.Subscription{
			ID:         uuid.New(),
			UserID:     userID,
			Plan:       subscription.PlanTrial,
			Status:     subscription.StatusTrialing,
			TrialUsed:  true,
			TrialStart: &start,
			TrialEnd:   &end,
			CreatedAt:  start,
			UpdatedAt:  start,
		}
		if withCard {
			pm := &subscription.PaymentMethod{
				ID:                uuid.New(),
				UserID:            userID,
				AuthorizationCode: "AUTH_" + userID.String()[:8],
				CustomerCode:      "CUS_" + userID.String()[:8],
				Email:             "trial@example.com",
				Last4:             "4081",
				Reusable:          true,
				IsDefault:         true,
				CreatedAt:         start,
				UpdatedAt:         start,
			}
			if err := tx.SavePaymentMethod(ctx, pm); err != nil {
				return err
			}
			sub.PaymentMethodID = &pm.ID
		}
		return tx.SaveSubscription(ctx, sub)
	})
	require.NoError(t, err)
	return userID
}

func chargeFor(userID uuid.UUID) any {
	return mock.MatchedBy(func(r paystack.ChargeRequest) bool {
		return r.Metadata.UserID == userID.String()
	})
}

func TestExpiredTrialSweeper_NoCardCancels(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := seedTrial(t, f, false)

	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Canceled)
	assert.Equal(t, 1, report.Total())

	sub := f.subscription(t, userID)
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
	assert.True(t, sub.TrialUsed)

	// Second pass finds nothing to do
	before := *sub
	report, err = f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	after := f.subscription(t, userID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	f.gateway.AssertNotCalled(t, "ChargeAuthorization", mock.Anything, mock.Anything)
}

func TestExpiredTrialSweeper_ChargeConverts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := seedTrial(t, f, true)

	f.gateway.On("ChargeAuthorization", mock.Anything, mock.MatchedBy(func(r paystack.ChargeRequest) bool {
		return r.Amount == 50000 &&
			r.Email == "trial@example.com" &&
			r.AuthorizationCode == "AUTH_"+userID.String()[:8] &&
			r.Metadata.PlanType == string(subscription.PlanMonthly) &&
			r.Metadata.Type == paystack.TypeSubscriptionPayment
	})).Return(&paystack.Transaction{Status: paystack.StatusSuccess}, nil).Once()

	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Converted)

	sub := f.subscription(t, userID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.PlanMonthly, sub.Plan)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), *sub.CurrentPeriodEnd)
	assert.Contains(t, sub.LastPaymentRef, "sweep-")

	// Converted rows are not due any more, so nothing is charged twice
	report, err = f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	f.gateway.AssertNumberOfCalls(t, "ChargeAuthorization", 1)

	// The charge.success for the sweep charge is a replay
	body := eventBody(t, paystack.EventChargeSuccess, map[string]any{
		"status":    "success",
		"reference": sub.LastPaymentRef,
		"amount":    50000,
		"metadata":  map[string]any{"user_id": userID.String(), "plan_type": "monthly", "type": paystack.TypeSubscriptionPayment},
		"authorization": map[string]any{
			"authorization_code": "AUTH_" + userID.String()[:8],
			"reusable":           true,
		},
	})
	res, err := f.ingestor.Ingest(ctx, body, sign(t, body))
	require.NoError(t, err)
	assert.Equal(t, "replay", res.Reason)
	assert.Equal(t, *sub.CurrentPeriodEnd, *f.subscription(t, userID).CurrentPeriodEnd)
}

func TestExpiredTrialSweeper_DeclineMarksPastDue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := seedTrial(t, f, true)

	f.gateway.On("ChargeAuthorization", mock.Anything, chargeFor(userID)).
		Return(&paystack.Transaction{Status: paystack.StatusFailed, GatewayResponse: "Insufficient Funds"}, paystack.ErrTransactionFailed).Once()

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PastDue)

	sub := f.subscription(t, userID)
	assert.Equal(t, subscription.StatusPastDue, sub.Status)
	assert.False(t, sub.HasAccess(f.clock.Now()))
	assert.Nil(t, sub.CurrentPeriodEnd)
	assert.Empty(t, f.notifier.Alerts())
}

func TestExpiredTrialSweeper_GatewayOutageLeavesTrialForRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := seedTrial(t, f, true)
	outage := &paystack.APIError{StatusCode: 503, Message: "unavailable", Endpoint: "/transaction/charge_authorization"}

	f.gateway.On("ChargeAuthorization", mock.Anything, chargeFor(userID)).Return(nil, outage).Once()
	f.gateway.On("VerifyTransaction", mock.Anything, mock.Anything).
		Return(nil, &paystack.APIError{StatusCode: 404, Message: "Transaction reference not found"}).Once()

	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, subscription.StatusTrialing, f.subscription(t, userID).Status)

	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, subscription.AlertChargeError, alerts[0].Kind)

	// Next run retries with the same reference; the gateway reports the
	// earlier attempt went through after all
	var refs []string
	f.gateway.On("ChargeAuthorization", mock.Anything, chargeFor(userID)).
		Run(func(args mock.Arguments) { refs = append(refs, args.Get(1).(paystack.ChargeRequest).Reference) }).
		Return(nil, &paystack.APIError{StatusCode: 400, Message: "Duplicate Transaction Reference"}).Once()
	f.gateway.On("VerifyTransaction", mock.Anything, mock.Anything).
		Return(&paystack.Transaction{Status: paystack.StatusSuccess}, nil).Once()

	report, err = f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Converted)
	assert.Equal(t, subscription.StatusActive, f.subscription(t, userID).Status)
	require.Len(t, refs, 1)
	assert.Equal(t, f.subscription(t, userID).LastPaymentRef, refs[0])
}

func TestExpiredTrialSweeper_SkipsRowsThatMovedOn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := seedTrial(t, f, true)

	// The user pays before the sweeper gets to them
	f.deliver(t, paidCharge(userID, "sub-early", "AUTH_"+userID.String()[:8], subscription.PlanYearly))

	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	assert.Equal(t, subscription.PlanYearly, f.subscription(t, userID).Plan)
	f.gateway.AssertNotCalled(t, "ChargeAuthorization", mock.Anything, mock.Anything)
}

func TestExpiredTrialSweeper_Batches(t *testing.T) {
	t.Parallel()

	cfg := subscription.DefaultConfig()
	cfg.SweepBatchSize = 2
	cfg.SweepConcurrency = 3

	f := &fixture{
		store:    subscription.NewMemoryStore(),
		gateway:  &MockGateway{},
		notifier: &recordingNotifier{},
		clock:    &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = subscription.NewService(f.store, f.gateway, nil, cfg,
		subscription.WithClock(f.clock.Now),
		subscription.WithNotifier(f.notifier),
	)
	f.sweeper = subscription.NewExpiredTrialSweeper(f.svc)

	var users []uuid.UUID
	for range 5 {
		users = append(users, seedTrial(t, f, false))
	}

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Canceled)
	for _, id := range users {
		assert.Equal(t, subscription.StatusCanceled, f.subscription(t, id).Status)
	}
}

func TestExpiredTrialSweeper_FailedRowsDoNotBlockLaterTrials(t *testing.T) {
	t.Parallel()

	cfg := subscription.DefaultConfig()
	cfg.SweepBatchSize = 2

	f := &fixture{
		store:    subscription.NewMemoryStore(),
		gateway:  &MockGateway{},
		notifier: &recordingNotifier{},
		clock:    &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = subscription.NewService(f.store, f.gateway, nil, cfg,
		subscription.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subscription.WithClock(f.clock.Now),
		subscription.WithNotifier(f.notifier),
	)
	f.sweeper = subscription.NewExpiredTrialSweeper(f.svc)

	// Two failing rows fill the first batch; the card-less trial sorts after them
	now := f.clock.Now()
	failing := []uuid.UUID{
		seedTrialEnded(t, f, true, now.Add(-3*time.Hour)),
		seedTrialEnded(t, f, true, now.Add(-2*time.Hour)),
	}
	noCard := seedTrialEnded(t, f, false, now.Add(-time.Hour))

	outage := &paystack.APIError{StatusCode: 503, Message: "unavailable"}
	f.gateway.On("ChargeAuthorization", mock.Anything, mock.Anything).Return(nil, outage)
	f.gateway.On("VerifyTransaction", mock.Anything, mock.Anything).Return(nil, outage)

	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Canceled: 1, Errors: 2}, report)
	assert.Equal(t, subscription.StatusCanceled, f.subscription(t, noCard).Status)
	for _, id := range failing {
		assert.Equal(t, subscription.StatusTrialing, f.subscription(t, id).Status)
	}

	// The failed rows are retried on the next run
	report, err = f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subscription.SweepReport{Errors: 2}, report)
	f.gateway.AssertNumberOfCalls(t, "ChargeAuthorization", 4)
}

func TestExpiredTrialSweeper_Canceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedTrial(t, f, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sweeper.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSweepReport_Total(t *testing.T) {
	t.Parallel()
	r := subscription.SweepReport{Converted: 1, PastDue: 2, Canceled: 3, Skipped: 4, Errors: 5}
	assert.Equal(t, 15, r.Total())
}
