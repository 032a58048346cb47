package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/pkg/validator"
)

func TestNewService_PanicsWithoutDependencies(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { subscription.NewService(nil, &MockGateway{}, nil, subscription.Config{}) })
	assert.Panics(t, func() { subscription.NewService(subscription.NewMemoryStore(), nil, nil, subscription.Config{}) })
}

func TestService_TrialExclusivity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	el, err := f.svc.CheckTrialEligibility(ctx, userID)
	require.NoError(t, err)
	assert.True(t, el.Eligible)

	f.startTrial(t, userID, "AUTH_EX01")

	el, err = f.svc.CheckTrialEligibility(ctx, userID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, subscription.CodeAlreadyActive, el.Reason, "a live row is reported before a used trial")

	_, err = f.svc.CancelSubscription(ctx, userID)
	require.NoError(t, err)

	// Once used, always used, whatever happens to the row afterwards
	for _, step := range []func(){
		func() {},
		func() { f.clock.Advance(365 * 24 * time.Hour) },
		func() {
			_, err := f.svc.Close(ctx, userID, subscription.StatusExpired)
			require.NoError(t, err)
		},
	} {
		step()
		el, err = f.svc.CheckTrialEligibility(ctx, userID)
		require.NoError(t, err)
		assert.False(t, el.Eligible)
		assert.Equal(t, subscription.CodeTrialUsed, el.Reason)
	}

	_, err = f.svc.StartTrial(ctx, userID, "user@example.com")
	assert.ErrorIs(t, err, subscription.ErrTrialUsed)
}

func TestService_StartTrial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.gateway.On("InitializeTransaction", mock.Anything, mock.MatchedBy(func(r paystack.InitializeRequest) bool {
		return r.Email == "user@example.com" &&
			r.Amount == subscription.DefaultConfig().TrialVerificationAmount &&
			r.Metadata.UserID == userID.String() &&
			r.Metadata.Type == paystack.TypeTrialVerification &&
			r.Metadata.PlanType == string(subscription.PlanTrial)
	})).Return(&paystack.InitializeResponse{AuthorizationURL: "https://checkout.paystack.com/abc", AccessCode: "abc"}, nil).Once()

	co, err := f.svc.StartTrial(ctx, userID, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", co.AuthorizationURL)
	assert.Contains(t, co.Reference, "trial-")
	assert.True(t, decimal.NewFromInt(199).Equal(co.Amount))

	// Nothing is created until the gateway confirms
	_, err = f.store.GetSubscription(ctx, userID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestService_StartTrialValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.StartTrial(context.Background(), uuid.New(), "not-an-email")
	require.Error(t, err)
	assert.True(t, validator.IsValidationError(err))
	assert.Equal(t, subscription.CodeValidation, subscription.Code(err))

	_, err = f.svc.StartTrial(context.Background(), uuid.Nil, "user@example.com")
	assert.Equal(t, subscription.CodeValidation, subscription.Code(err))
}

func TestService_StartTrialAlreadyActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.deliver(t, paidCharge(userID, "sub-aa", "AUTH_AA01", subscription.PlanMonthly))

	_, err := f.svc.StartTrial(context.Background(), userID, "user@example.com")
	assert.ErrorIs(t, err, subscription.ErrAlreadyActive)
	assert.Equal(t, subscription.CodeAlreadyActive, subscription.Code(err))
}

func TestService_StartPaidSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.gateway.On("InitializeTransaction", mock.Anything, mock.MatchedBy(func(r paystack.InitializeRequest) bool {
		return r.Amount == 500000 && r.Metadata.PlanType == "yearly" && r.Metadata.Type == paystack.TypeSubscriptionPayment
	})).Return(&paystack.InitializeResponse{AuthorizationURL: "https://checkout.paystack.com/y", Reference: "gw-ref"}, nil).Once()

	co, err := f.svc.StartPaidSubscription(ctx, userID, "user@example.com", subscription.PlanYearly)
	require.NoError(t, err)
	assert.Equal(t, "gw-ref", co.Reference)
	assert.Equal(t, "NGN", co.Currency)

	_, err = f.svc.StartPaidSubscription(ctx, userID, "user@example.com", subscription.PlanTrial)
	assert.Equal(t, subscription.CodeValidation, subscription.Code(err))
}

func TestService_GatewayErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.On("InitializeTransaction", mock.Anything, mock.Anything).Return(nil, paystack.ErrCircuitOpen).Once()

	_, err := f.svc.StartPaidSubscription(context.Background(), uuid.New(), "user@example.com", subscription.PlanMonthly)
	require.Error(t, err)
	assert.ErrorIs(t, err, subscription.ErrGateway)
	assert.ErrorIs(t, err, paystack.ErrCircuitOpen)
	assert.False(t, subscription.IsDomainError(err))
}

func TestService_CheckSubscriptionStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	snap, err := f.svc.CheckSubscriptionStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusNone, snap.Status)
	assert.False(t, snap.HasAccess)

	f.startTrial(t, userID, "AUTH_ST01")
	snap, err = f.svc.CheckSubscriptionStatus(ctx, userID)
	require.NoError(t, err)
	assert.True(t, snap.HasAccess)
	assert.True(t, snap.InTrial)
	assert.False(t, snap.TrialHasEnded)

	f.clock.Advance(8 * 24 * time.Hour)
	snap, err = f.svc.CheckSubscriptionStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTrialing, snap.Status, "only the sweeper moves a lapsed trial")
	assert.False(t, snap.HasAccess)
	assert.False(t, snap.InTrial)
	assert.True(t, snap.TrialHasEnded)

	f.deliver(t, paidCharge(userID, "sub-st", "AUTH_ST01", subscription.PlanMonthly))
	snap, err = f.svc.CheckSubscriptionStatus(ctx, userID)
	require.NoError(t, err)
	assert.True(t, snap.HasAccess)
	assert.Equal(t, subscription.PlanMonthly, snap.Plan)
	assert.True(t, decimal.NewFromInt(500).Equal(snap.Amount))
	assert.Contains(t, snap.AmountDisplay, "500.00")
}

func TestService_CancelSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	customer := "CUS_" + userID.String()[:8]

	f.deliver(t, paidCharge(userID, "sub-c", "AUTH_CA01", subscription.PlanMonthly))
	_, err := f.ingest(t, paystack.EventSubscriptionCreate, map[string]any{
		"subscription_code": "SUB_cancel",
		"email_token":       "tok_cancel",
		"customer":          map[string]any{"customer_code": customer},
	})
	require.NoError(t, err)

	f.gateway.On("DisableSubscription", mock.Anything, "SUB_cancel", "tok_cancel").Return(nil).Once()

	snap, err := f.svc.CancelSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, snap.Status)
	assert.NotNil(t, snap.CanceledAt)
	assert.False(t, snap.HasAccess)

	// Nothing left to cancel
	_, err = f.svc.CancelSubscription(ctx, userID)
	assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	assert.Equal(t, subscription.CodeConflict, subscription.Code(err))

	_, err = f.svc.CancelSubscription(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestService_CancelSurvivesDisableFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.deliver(t, paidCharge(userID, "sub-d", "AUTH_DF01", subscription.PlanMonthly))
	_, err := f.ingest(t, paystack.EventSubscriptionCreate, map[string]any{
		"subscription_code": "SUB_df",
		"email_token":       "tok_df",
		"customer":          map[string]any{"customer_code": "CUS_" + userID.String()[:8]},
	})
	require.NoError(t, err)

	f.gateway.On("DisableSubscription", mock.Anything, "SUB_df", "tok_df").Return(paystack.ErrCircuitOpen).Once()

	snap, err := f.svc.CancelSubscription(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, snap.Status)
}

func TestService_VerifyPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	txn := &paystack.Transaction{
		Status:    paystack.StatusSuccess,
		Reference: "sub-v",
		Amount:    50000,
		Metadata:  paystack.Metadata{UserID: userID.String(), PlanType: "monthly", Type: paystack.TypeSubscriptionPayment},
		Authorization: paystack.Authorization{
			AuthorizationCode: "AUTH_V001",
			Reusable:          true,
		},
		Customer: paystack.Customer{CustomerCode: "CUS_v", Email: "v@example.com"},
	}
	f.gateway.On("VerifyTransaction", mock.Anything, "sub-v").Return(txn, nil)

	snap, err := f.svc.VerifyPayment(ctx, userID, "sub-v")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, snap.Status)
	end := *snap.CurrentPeriodEnd

	// The webhook for the same payment arrives afterwards
	res := f.deliver(t, paidCharge(userID, "sub-v", "AUTH_V001", subscription.PlanMonthly))
	assert.Equal(t, "replay", res.Reason)
	assert.Equal(t, end, *f.subscription(t, userID).CurrentPeriodEnd)

	// Someone else cannot claim it
	_, err = f.svc.VerifyPayment(ctx, uuid.New(), "sub-v")
	assert.ErrorIs(t, err, subscription.ErrReferenceMismatch)
}

func TestService_VerifyPaymentNotSuccessful(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.gateway.On("VerifyTransaction", mock.Anything, "sub-abandoned").Return(&paystack.Transaction{
		Status:   paystack.StatusAbandoned,
		Metadata: paystack.Metadata{UserID: userID.String()},
	}, nil)

	_, err := f.svc.VerifyPayment(context.Background(), userID, "sub-abandoned")
	assert.ErrorIs(t, err, subscription.ErrPaymentNotSuccessful)
	assert.Equal(t, subscription.CodePaymentFailed, subscription.Code(err))
}

func TestService_CardAddFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.gateway.On("InitializeTransaction", mock.Anything, mock.MatchedBy(func(r paystack.InitializeRequest) bool {
		return r.Metadata.Type == paystack.TypeCardVerification
	})).Return(&paystack.InitializeResponse{AuthorizationURL: "https://checkout.paystack.com/card"}, nil)

	co, err := f.svc.InitializeCardAdd(ctx, userID, "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, co.Reference, "card-")

	f.gateway.On("VerifyTransaction", mock.Anything, "card-1").Return(&paystack.Transaction{
		Status:        paystack.StatusSuccess,
		Reference:     "card-1",
		Amount:        19900,
		Metadata:      paystack.Metadata{UserID: userID.String(), Type: paystack.TypeCardVerification},
		Authorization: card("AUTH_CD01"),
		Customer:      paystack.Customer{CustomerCode: "CUS_card", Email: "user@example.com"},
	}, nil)
	f.expectRefund("card-1").Once()

	pm, err := f.svc.VerifyCardAdd(ctx, userID, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "AUTH_CD01", pm.AuthorizationCode)
	assert.True(t, pm.IsDefault)

	// Verifying again neither duplicates the card nor refunds twice
	again, err := f.svc.VerifyCardAdd(ctx, userID, "card-1")
	require.NoError(t, err)
	assert.Equal(t, pm.ID, again.ID)

	// No subscription row is created by adding a card
	_, err = f.store.GetSubscription(ctx, userID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestService_InitializeCardAddAtCapacity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	reg := newRegistry(f.store)
	for _, code := range []string{"AUTH_K001", "AUTH_K002", "AUTH_K003"} {
		_, err := reg.Save(ctx, userID, card(code), customer)
		require.NoError(t, err)
	}

	_, err := f.svc.InitializeCardAdd(ctx, userID, "user@example.com")
	assert.ErrorIs(t, err, subscription.ErrCardLimitReached)
	f.gateway.AssertNotCalled(t, "InitializeTransaction", mock.Anything, mock.Anything)
}

func TestService_Close(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.deliver(t, paidCharge(userID, "sub-close", "AUTH_CL01", subscription.PlanMonthly))

	snap, err := f.svc.Close(ctx, userID, subscription.StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusInactive, snap.Status)
	assert.Nil(t, snap.CurrentPeriodEnd)
	assert.False(t, snap.HasAccess)

	_, err = f.svc.Close(ctx, userID, subscription.StatusActive)
	assert.Equal(t, subscription.CodeValidation, subscription.Code(err))

	_, err = f.svc.Close(ctx, uuid.New(), subscription.StatusExpired)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	// A new payment brings a closed row back
	f.deliver(t, paidCharge(userID, "sub-back", "AUTH_CL01", subscription.PlanYearly))
	assert.Equal(t, subscription.StatusActive, f.subscription(t, userID).Status)
}

func TestService_ConcurrentEventsKeepOneLiveRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, subscription.WithDeduplicator(forgetful{}))
	ctx := context.Background()
	userID := uuid.New()
	f.gateway.On("Refund", mock.Anything, mock.Anything).Return(&paystack.Refund{}, nil).Maybe()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := trialCharge(userID, "trial-c-"+string(rune('a'+i)), "AUTH_CC01")
			body := eventBody(t, paystack.EventChargeSuccess, c.transaction())
			_, err := f.ingestor.Ingest(ctx, body, sign(t, body))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			c := paidCharge(userID, "sub-c-"+string(rune('a'+i)), "AUTH_CC01", subscription.PlanMonthly)
			body := eventBody(t, paystack.EventChargeSuccess, c.transaction())
			_, err := f.ingestor.Ingest(ctx, body, sign(t, body))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sub := f.subscription(t, userID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, subscription.PlanMonthly, sub.Plan)
	// Twenty monthly payments, each applied once
	assert.Equal(t, f.clock.Now().Add(20*30*24*time.Hour), *sub.CurrentPeriodEnd)

	methods, err := f.store.ListPaymentMethods(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, subscription.ErrorCode(""), subscription.Code(nil))
	assert.Equal(t, subscription.CodeNotFound, subscription.Code(subscription.ErrPlanNotFound))
	assert.Equal(t, subscription.CodeInternal, subscription.Code(errors.New("boom")))
	assert.True(t, subscription.IsDomainError(subscription.ErrCardLimitReached))
	assert.False(t, subscription.IsDomainError(errors.New("boom")))
}
