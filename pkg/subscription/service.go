package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/validator"
)

// Service is the entry point of the billing engine. It owns the subscription
// lifecycle, the saved cards and every call to the payment gateway.
type Service struct {
	store       Store
	gateway     Gateway
	catalog     *Catalog
	cfg         Config
	cards       *PaymentMethodRegistry
	eligibility *TrialEligibilityPolicy
	life        *lifecycle
	dispatcher  Dispatcher
	notifier    Notifier
	dedupe      Deduplicator
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDispatcher sets how refunds, disables and enrollments run after commit.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithNotifier sets the operator alert channel.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithDeduplicator sets the webhook delivery deduplicator.
func WithDeduplicator(d Deduplicator) Option {
	return func(s *Service) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the billing engine. It panics when a required dependency is nil.
func NewService(store Store, gateway Gateway, catalog *Catalog, cfg Config, opts ...Option) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if gateway == nil {
		panic("subscription: Gateway is required")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	cfg = cfg.withDefaults()

	s := &Service{
		store:    store,
		gateway:  gateway,
		catalog:  catalog,
		cfg:      cfg,
		notifier: noopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("billing"))
	if s.dispatcher == nil {
		s.dispatcher = inlineDispatcher{timeout: cfg.SideEffectTimeout, logger: s.logger}
	}
	if s.dedupe == nil {
		s.dedupe = NewMemoryDeduplicator(0)
	}

	s.cards = NewPaymentMethodRegistry(store, cfg.MaxCardsPerUser, s.logger)
	s.cards.now = s.now
	s.eligibility = NewTrialEligibilityPolicy(store)
	s.life = &lifecycle{
		table:   newLifecycleTable(),
		catalog: catalog,
		cfg:     cfg,
		metrics: s.metrics,
		logger:  s.logger,
	}
	return s
}

// Catalog returns the plan catalog in use.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Checkout is a hosted payment page the customer must complete.
type Checkout struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Amount           decimal.Decimal
	Currency         string
}

// Snapshot is the read model of a user's subscription.
type Snapshot struct {
	HasAccess          bool
	Status             Status
	Plan               PlanType
	Amount             decimal.Decimal
	AmountDisplay      string
	InTrial            bool
	TrialHasEnded      bool
	TrialUsed          bool
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	SubscriptionCode   string
	PaymentMethodID    *uuid.UUID
}

// CheckTrialEligibility reports whether the user may start a free trial.
func (s *Service) CheckTrialEligibility(ctx context.Context, userID uuid.UUID) (Eligibility, error) {
	if err := validator.Apply(validator.RequiredUUID("user_id", userID)); err != nil {
		return Eligibility{}, err
	}
	return s.eligibility.Evaluate(ctx, userID)
}

// StartTrial opens a card verification checkout for a free trial. The trial
// itself starts only when the gateway confirms the verification charge.
func (s *Service) StartTrial(ctx context.Context, userID uuid.UUID, email string) (*Checkout, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		return nil, err
	}

	el, err := s.eligibility.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !el.Eligible {
		return nil, el.Err()
	}

	return s.checkout(ctx, email, s.cfg.TrialVerificationAmount, "trial", paystack.Metadata{
		UserID:   userID.String(),
		PlanType: string(PlanTrial),
		Type:     paystack.TypeTrialVerification,
	})
}

// StartPaidSubscription opens a checkout for a paid plan.
func (s *Service) StartPaidSubscription(ctx context.Context, userID uuid.UUID, email string, planType PlanType) (*Checkout, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
		validator.InList("plan", planType, []PlanType{PlanMonthly, PlanYearly}),
	); err != nil {
		return nil, err
	}
	plan, err := s.catalog.Plan(planType)
	if err != nil {
		return nil, err
	}

	return s.checkout(ctx, email, ToMinor(plan.Amount), "sub", paystack.Metadata{
		UserID:   userID.String(),
		PlanType: string(plan.Type),
		Type:     paystack.TypeSubscriptionPayment,
	})
}

// InitializeCardAdd opens a small verification checkout that saves a new card.
func (s *Service) InitializeCardAdd(ctx context.Context, userID uuid.UUID, email string) (*Checkout, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		return nil, err
	}

	methods, err := s.cards.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(methods) >= s.cfg.MaxCardsPerUser {
		return nil, ErrCardLimitReached
	}

	return s.checkout(ctx, email, s.cfg.TrialVerificationAmount, "card", paystack.Metadata{
		UserID: userID.String(),
		Type:   paystack.TypeCardVerification,
	})
}

func (s *Service) checkout(ctx context.Context, email string, amount int64, prefix string, meta paystack.Metadata) (*Checkout, error) {
	reference := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	res, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     email,
		Amount:    amount,
		Currency:  s.catalog.Currency(),
		Reference: reference,
		Channels:  []string{"card"},
		Metadata:  meta,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to initialize transaction",
			logger.Reference(reference),
			slog.String("type", meta.Type),
			logger.Error(err),
		)
		return nil, errors.Join(ErrGateway, err)
	}
	if res.Reference != "" {
		reference = res.Reference
	}
	return &Checkout{
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		Reference:        reference,
		Amount:           FromMinor(amount),
		Currency:         s.catalog.Currency(),
	}, nil
}

// CheckSubscriptionStatus returns the user's subscription snapshot. A user
// without a row gets a snapshot with status none and no access.
func (s *Service) CheckSubscriptionStatus(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	if err := validator.Apply(validator.RequiredUUID("user_id", userID)); err != nil {
		return Snapshot{}, err
	}
	sub, err := s.store.GetSubscription(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return Snapshot{Status: StatusNone}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load subscription: %w", err)
	}
	return s.snapshot(sub), nil
}

func (s *Service) snapshot(sub *Subscription) Snapshot {
	now := s.now()
	return Snapshot{
		HasAccess:          sub.HasAccess(now),
		Status:             sub.Status,
		Plan:               sub.Plan,
		Amount:             sub.Amount,
		AmountDisplay:      FormatAmount(sub.Amount, s.catalog.Currency()),
		InTrial:            sub.InTrial(now),
		TrialHasEnded:      sub.TrialHasEnded(now),
		TrialUsed:          sub.TrialUsed,
		TrialStart:         sub.TrialStart,
		TrialEnd:           sub.TrialEnd,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		SubscriptionCode:   sub.SubscriptionCode,
		PaymentMethodID:    sub.PaymentMethodID,
	}
}

// CancelSubscription cancels the user's live subscription. The recurring
// gateway subscription is disabled after the cancellation has committed; a
// failure to do so is logged and does not undo the cancellation.
func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) (Snapshot, error) {
	if err := validator.Apply(validator.RequiredUUID("user_id", userID)); err != nil {
		return Snapshot{}, err
	}

	var canceled *Subscription
	err := s.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		sub, err := tx.GetSubscription(ctx, userID)
		if err != nil {
			return err
		}
		out, err := s.life.fire(ctx, tx, userID, EventCanceled, &change{now: s.now()})
		if err != nil {
			return err
		}
		if !out.Applied {
			return fmt.Errorf("%w: %s subscription cannot be canceled", ErrInvalidTransition, sub.Status)
		}
		canceled, err = tx.GetSubscription(ctx, userID)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.disableRecurring(ctx, canceled)
	return s.snapshot(canceled), nil
}

// VerifyPayment confirms a checkout from the payment callback and applies it
// the same way the charge.success webhook would. Whichever arrives second is
// a replay.
func (s *Service) VerifyPayment(ctx context.Context, userID uuid.UUID, reference string) (Snapshot, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredString("reference", reference),
	); err != nil {
		return Snapshot{}, err
	}

	txn, err := s.verifyOwned(ctx, userID, reference)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := s.applyCharge(ctx, *txn); err != nil {
		return Snapshot{}, err
	}
	return s.CheckSubscriptionStatus(ctx, userID)
}

// VerifyCardAdd confirms a card verification checkout and saves the card.
// The verification charge is refunded.
func (s *Service) VerifyCardAdd(ctx context.Context, userID uuid.UUID, reference string) (*PaymentMethod, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredString("reference", reference),
	); err != nil {
		return nil, err
	}

	txn, err := s.verifyOwned(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if txn.Metadata.Type != paystack.TypeCardVerification {
		return nil, fmt.Errorf("%w: transaction is not a card verification", ErrReferenceMismatch)
	}
	if _, err := s.applyCharge(ctx, *txn); err != nil {
		return nil, err
	}

	methods, err := s.store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	for _, pm := range methods {
		if pm.AuthorizationCode == txn.Authorization.AuthorizationCode {
			return &pm, nil
		}
	}
	if !txn.Authorization.Reusable {
		return nil, ErrNotReusable
	}
	return nil, ErrCardLimitReached
}

func (s *Service) verifyOwned(ctx context.Context, userID uuid.UUID, reference string) (*paystack.Transaction, error) {
	txn, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to verify transaction",
			logger.UserID(userID),
			logger.Reference(reference),
			logger.Error(err),
		)
		return nil, errors.Join(ErrGateway, err)
	}
	if !txn.Succeeded() {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotSuccessful, txn.Status)
	}
	if txn.Metadata.UserID != userID.String() {
		s.logger.WarnContext(ctx, "transaction verified by another user",
			logger.UserID(userID),
			logger.Reference(reference),
			logger.SecurityEvent("reference_mismatch"),
		)
		return nil, ErrReferenceMismatch
	}
	return txn, nil
}

// ListPaymentMethods returns the user's saved cards, default first.
func (s *Service) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]PaymentMethod, error) {
	if err := validator.Apply(validator.RequiredUUID("user_id", userID)); err != nil {
		return nil, err
	}
	return s.cards.List(ctx, userID)
}

// SetDefaultPaymentMethod makes the card the user's default.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, userID, methodID uuid.UUID) (*PaymentMethod, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredUUID("payment_method_id", methodID),
	); err != nil {
		return nil, err
	}
	return s.cards.SetDefault(ctx, userID, methodID)
}

// RemovePaymentMethod deletes a saved card.
func (s *Service) RemovePaymentMethod(ctx context.Context, userID, methodID uuid.UUID) error {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.RequiredUUID("payment_method_id", methodID),
	); err != nil {
		return err
	}
	return s.cards.Remove(ctx, userID, methodID)
}

// Close moves the user's row to a terminal administrative status, expired or inactive.
func (s *Service) Close(ctx context.Context, userID uuid.UUID, status Status) (Snapshot, error) {
	if err := validator.Apply(
		validator.RequiredUUID("user_id", userID),
		validator.InList("status", status, []Status{StatusExpired, StatusInactive}),
	); err != nil {
		return Snapshot{}, err
	}
	event := EventExpired
	if status == StatusInactive {
		event = EventDeactivated
	}

	var closed *Subscription
	err := s.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetSubscription(ctx, userID); err != nil {
			return err
		}
		out, err := s.life.fire(ctx, tx, userID, event, &change{now: s.now()})
		if err != nil {
			return err
		}
		if !out.Applied {
			return fmt.Errorf("%w: cannot close as %s", ErrInvalidTransition, status)
		}
		closed, err = tx.GetSubscription(ctx, userID)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.disableRecurring(ctx, closed)
	return s.snapshot(closed), nil
}
