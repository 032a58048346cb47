package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/statemachine"
)

// Charge kinds, derived from transaction metadata.
const (
	chargeTrial        = "trial"
	chargePaid         = "paid"
	chargeCard         = "card"
	chargeRenewal      = "renewal"
	chargeUnclassified = "unclassified"
)

const (
	reasonUnclassified = "unclassified"
	reasonUnknownPlan  = "unknown_plan"
	reasonNotSuccess   = "not_successful"
)

// classifyCharge decides what a successful transaction paid for. Paid
// classification wins over trial when metadata carries a paid plan.
func classifyCharge(txn paystack.Transaction) string {
	meta := txn.Metadata
	switch {
	case meta.Type == paystack.TypeSubscriptionPayment, PlanType(meta.PlanType).Paid():
		return chargePaid
	case meta.Type == paystack.TypeTrialVerification, PlanType(meta.PlanType) == PlanTrial:
		return chargeTrial
	case meta.Type == paystack.TypeCardVerification:
		return chargeCard
	case txn.Plan != nil && txn.Plan.PlanCode != "":
		return chargeRenewal
	}
	return chargeUnclassified
}

// applyCharge applies a successful gateway transaction. It is safe to call
// any number of times for the same transaction.
func (s *Service) applyCharge(ctx context.Context, txn paystack.Transaction) (Outcome, error) {
	if !txn.Succeeded() {
		return Outcome{Reason: reasonNotSuccess}, nil
	}

	kind := classifyCharge(txn)
	if kind == chargeUnclassified {
		s.logger.WarnContext(ctx, "ignoring unclassified charge",
			logger.Reference(txn.Reference),
			slog.String("metadata_type", txn.Metadata.Type),
		)
		return Outcome{Reason: reasonUnclassified}, nil
	}

	userID, err := s.resolveChargeUser(ctx, txn)
	if err != nil {
		return Outcome{}, err
	}

	switch kind {
	case chargeTrial:
		return s.applyTrialCharge(ctx, userID, txn)
	case chargePaid:
		return s.applyPaidCharge(ctx, userID, txn)
	case chargeCard:
		return s.applyCardCharge(ctx, userID, txn)
	default:
		return s.applyRenewal(ctx, userID, txn.Reference)
	}
}

func (s *Service) applyTrialCharge(ctx context.Context, userID uuid.UUID, txn paystack.Transaction) (Outcome, error) {
	pm, err := s.saveChargeCard(ctx, userID, txn)
	if err != nil {
		return Outcome{}, err
	}
	trial, err := s.catalog.Plan(PlanTrial)
	if err != nil {
		return Outcome{}, err
	}

	c := &change{now: s.now(), plan: trial, reference: txn.Reference}
	if pm != nil {
		c.paymentMethodID = &pm.ID
	}
	out, err := s.fireAtomic(ctx, userID, EventTrialVerified, c)
	if err != nil {
		return out, err
	}

	// The verification charge goes back whether or not the trial started
	if out.Reason != reasonReplay {
		s.refundVerification(ctx, userID, txn)
	}
	return out, nil
}

func (s *Service) applyPaidCharge(ctx context.Context, userID uuid.UUID, txn paystack.Transaction) (Outcome, error) {
	plan, err := s.catalog.Plan(PlanType(txn.Metadata.PlanType))
	if err != nil || !plan.Type.Paid() {
		// Money was taken for something we cannot price; retrying will not help
		s.logger.ErrorContext(ctx, "paid charge for unknown plan",
			logger.UserID(userID),
			logger.Reference(txn.Reference),
			slog.String("plan_type", txn.Metadata.PlanType),
		)
		s.alert(ctx, Alert{
			Kind:      AlertChargeError,
			UserID:    userID,
			Reference: txn.Reference,
			Amount:    FormatAmount(FromMinor(txn.Amount), s.catalog.Currency()),
			Reason:    fmt.Sprintf("unknown plan %q", txn.Metadata.PlanType),
			At:        s.now(),
		})
		return Outcome{Reason: reasonUnknownPlan}, nil
	}

	pm, err := s.saveChargeCard(ctx, userID, txn)
	if err != nil {
		return Outcome{}, err
	}

	c := &change{now: s.now(), plan: plan, reference: txn.Reference}
	if pm != nil {
		c.paymentMethodID = &pm.ID
	}
	out, err := s.fireAtomic(ctx, userID, EventPaymentSucceeded, c)
	if err != nil {
		return out, err
	}
	if out.Applied {
		s.enrollRecurring(ctx, userID, plan, pm)
	}
	return out, nil
}

func (s *Service) applyCardCharge(ctx context.Context, userID uuid.UUID, txn paystack.Transaction) (Outcome, error) {
	if _, err := s.saveChargeCard(ctx, userID, txn); err != nil {
		return Outcome{}, err
	}

	fresh, err := s.consumeReference(ctx, userID, txn.Reference)
	if err != nil {
		return Outcome{}, err
	}
	if !fresh {
		return Outcome{Reason: reasonReplay}, nil
	}
	s.refundVerification(ctx, userID, txn)
	return Outcome{Applied: true}, nil
}

func (s *Service) applyRenewal(ctx context.Context, userID uuid.UUID, reference string) (Outcome, error) {
	return s.fireAtomic(ctx, userID, EventRenewed, &change{now: s.now(), reference: reference})
}

// fireAtomic runs one lifecycle event in its own unit of work.
func (s *Service) fireAtomic(ctx context.Context, userID uuid.UUID, event statemachine.Event, c *change) (Outcome, error) {
	var out Outcome
	err := s.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = s.life.fire(ctx, tx, userID, event, c)
		return err
	})
	return out, err
}

// consumeReference marks a payment reference as handled and reports whether
// this call was the first to do so.
func (s *Service) consumeReference(ctx context.Context, userID uuid.UUID, reference string) (bool, error) {
	fresh := false
	err := s.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		seen, err := tx.PaymentApplied(ctx, reference)
		if err != nil {
			return fmt.Errorf("check payment reference: %w", err)
		}
		if seen {
			return nil
		}
		fresh = true
		return tx.RecordPayment(ctx, userID, reference, s.now())
	})
	return fresh, err
}

// saveChargeCard stores the card a charge was made with. Domain refusals are
// logged and swallowed so the payment itself is still applied.
func (s *Service) saveChargeCard(ctx context.Context, userID uuid.UUID, txn paystack.Transaction) (*PaymentMethod, error) {
	pm, err := s.cards.Save(ctx, userID, txn.Authorization, txn.Customer)
	switch {
	case err == nil:
		return pm, nil
	case errors.Is(err, ErrCardLimitReached), errors.Is(err, ErrNotReusable), errors.Is(err, ErrDuplicateAuthorization):
		s.logger.WarnContext(ctx, "card from charge not saved",
			logger.UserID(userID),
			logger.Reference(txn.Reference),
			logger.Error(err),
		)
		return nil, nil
	default:
		return nil, err
	}
}

// resolveChargeUser finds the user a transaction belongs to, from metadata
// first and then from the gateway customer.
func (s *Service) resolveChargeUser(ctx context.Context, txn paystack.Transaction) (uuid.UUID, error) {
	if id, err := uuid.Parse(txn.Metadata.UserID); err == nil && id != uuid.Nil {
		return id, nil
	}
	return s.resolveCustomer(ctx, txn.Customer.CustomerCode)
}

func (s *Service) resolveCustomer(ctx context.Context, customerCode string) (uuid.UUID, error) {
	if customerCode == "" {
		return uuid.Nil, ErrUserNotResolved
	}
	return s.store.FindUserByCustomerCode(ctx, customerCode)
}

// resolveSubscription finds the user owning a gateway subscription code,
// falling back to the customer. Only subscription.create uses the fallback,
// since it is what links a new code to its row.
func (s *Service) resolveSubscription(ctx context.Context, code, customerCode string) (uuid.UUID, error) {
	if code != "" {
		sub, err := s.store.FindSubscriptionByCode(ctx, code)
		if err == nil {
			return sub.UserID, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return uuid.Nil, err
		}
	}
	return s.resolveCustomer(ctx, customerCode)
}
