package subscription_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/subscription"
	"github.com/codeabuu/pdfworld/pkg/webhook"
)

const testSecret = "sk_test_secret"

// MockGateway is a mock implementation of subscription.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paystack.InitializeResponse), args.Error(1)
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paystack.Transaction), args.Error(1)
}

func (m *MockGateway) ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (*paystack.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paystack.Transaction), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, req paystack.RefundRequest) (*paystack.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paystack.Refund), args.Error(1)
}

func (m *MockGateway) CreateSubscription(ctx context.Context, req paystack.CreateSubscriptionRequest) (*paystack.Subscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paystack.Subscription), args.Error(1)
}

func (m *MockGateway) DisableSubscription(ctx context.Context, code, emailToken string) error {
	args := m.Called(ctx, code, emailToken)
	return args.Error(0)
}

// recordingNotifier keeps every alert it is asked to deliver.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []subscription.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a subscription.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) Alerts() []subscription.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]subscription.Alert(nil), n.alerts...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *subscription.Service
	ingestor *subscription.WebhookIngestor
	sweeper  *subscription.ExpiredTrialSweeper
	store    *subscription.MemoryStore
	gateway  *MockGateway
	notifier *recordingNotifier
	clock    *testClock
}

func newFixture(t *testing.T, opts ...subscription.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    subscription.NewMemoryStore(),
		gateway:  &MockGateway{},
		notifier: &recordingNotifier{},
		clock:    &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	base := []subscription.Option{
		subscription.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subscription.WithNotifier(f.notifier),
		subscription.WithClock(f.clock.Now),
	}
	f.svc = subscription.NewService(f.store, f.gateway, subscription.DefaultCatalog(), subscription.DefaultConfig(), append(base, opts...)...)
	f.ingestor = subscription.NewWebhookIngestor(f.svc, testSecret)
	f.sweeper = subscription.NewExpiredTrialSweeper(f.svc)
	t.Cleanup(func() { f.gateway.AssertExpectations(t) })
	return f
}

// expectRefund registers a successful refund of reference.
func (f *fixture) expectRefund(reference string) *mock.Call {
	return f.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r paystack.RefundRequest) bool {
		return r.Transaction == reference
	})).Return(&paystack.Refund{Status: "pending"}, nil)
}

type charge struct {
	userID    uuid.UUID
	reference string
	kind      string
	plan      subscription.PlanType
	authCode  string
	customer  string
	amount    int64
	reusable  *bool
}

func (c charge) transaction() map[string]any {
	reusable := true
	if c.reusable != nil {
		reusable = *c.reusable
	}
	customer := c.customer
	if customer == "" {
		customer = "CUS_" + c.userID.String()[:8]
	}
	amount := c.amount
	if amount == 0 {
		amount = 19900
	}
	meta := map[string]any{"type": c.kind}
	if c.userID != uuid.Nil {
		meta["user_id"] = c.userID.String()
	}
	if c.plan != "" {
		meta["plan_type"] = string(c.plan)
	}
	return map[string]any{
		"id":        1,
		"status":    "success",
		"reference": c.reference,
		"amount":    amount,
		"currency":  "NGN",
		"paid_at":   "2025-03-01T12:00:00Z",
		"metadata":  meta,
		"authorization": map[string]any{
			"authorization_code": c.authCode,
			"last4":              "4081",
			"exp_month":          "12",
			"exp_year":           "2030",
			"card_type":          "visa ",
			"bank":               "TEST BANK",
			"reusable":           reusable,
		},
		"customer": map[string]any{
			"customer_code": customer,
			"email":         "user@example.com",
		},
	}
}

func trialCharge(userID uuid.UUID, reference, authCode string) charge {
	return charge{userID: userID, reference: reference, kind: paystack.TypeTrialVerification, plan: subscription.PlanTrial, authCode: authCode}
}

func paidCharge(userID uuid.UUID, reference, authCode string, plan subscription.PlanType) charge {
	return charge{userID: userID, reference: reference, kind: paystack.TypeSubscriptionPayment, plan: plan, authCode: authCode, amount: 50000}
}

func eventBody(t *testing.T, event string, data any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return body
}

func sign(t *testing.T, body []byte) string {
	t.Helper()
	sig, err := webhook.Sign(testSecret, body)
	require.NoError(t, err)
	return sig
}

// deliver signs and ingests a charge.success for c.
func (f *fixture) deliver(t *testing.T, c charge) subscription.IngestResult {
	t.Helper()
	body := eventBody(t, paystack.EventChargeSuccess, c.transaction())
	res, err := f.ingestor.Ingest(context.Background(), body, sign(t, body))
	require.NoError(t, err)
	return res
}

func (f *fixture) ingest(t *testing.T, event string, data any) (subscription.IngestResult, error) {
	t.Helper()
	body := eventBody(t, event, data)
	return f.ingestor.Ingest(context.Background(), body, sign(t, body))
}

func (f *fixture) subscription(t *testing.T, userID uuid.UUID) *subscription.Subscription {
	t.Helper()
	sub, err := f.store.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	return sub
}

// startTrial puts userID in a trial verified with authCode.
func (f *fixture) startTrial(t *testing.T, userID uuid.UUID, authCode string) *subscription.Subscription {
	t.Helper()
	ref := "trial-" + uuid.NewString()
	f.expectRefund(ref).Once()
	res := f.deliver(t, trialCharge(userID, ref, authCode))
	require.Equal(t, subscription.OutcomeApplied, res.Outcome)
	return f.subscription(t, userID)
}
