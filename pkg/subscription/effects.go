package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
)

// Side effect names used in logs and metrics.
const (
	effectRefund  = "refund"
	effectDisable = "disable_subscription"
	effectEnroll  = "create_subscription"
)

// refundVerification returns a verification charge to the customer. Failure
// is never fatal: it is counted, logged and sent to the operator.
func (s *Service) refundVerification(ctx context.Context, userID uuid.UUID, txn paystack.Transaction) {
	reference := txn.Reference
	amount := FormatAmount(FromMinor(txn.Amount), s.catalog.Currency())

	s.dispatcher.Dispatch(ctx, effectRefund, func(ctx context.Context) error {
		_, err := s.gateway.Refund(ctx, paystack.RefundRequest{
			Transaction: reference,
			Reason:      "card verification",
		})
		s.metrics.sideEffect(effectRefund, err)
		if err == nil {
			s.logger.InfoContext(ctx, "verification charge refunded",
				logger.UserID(userID),
				logger.Reference(reference),
			)
			return nil
		}

		s.metrics.refundFailure()
		s.logger.ErrorContext(ctx, "failed to refund verification charge",
			logger.UserID(userID),
			logger.Reference(reference),
			slog.String("amount", amount),
			logger.Error(err),
		)
		s.alert(ctx, Alert{
			Kind:      AlertRefundFailed,
			UserID:    userID,
			Reference: reference,
			Amount:    amount,
			Reason:    err.Error(),
			At:        s.now(),
		})
		return err
	})
}

// disableRecurring stops gateway side renewals of a row that is no longer live.
func (s *Service) disableRecurring(ctx context.Context, sub *Subscription) {
	if sub == nil || sub.SubscriptionCode == "" {
		return
	}
	code, token, userID := sub.SubscriptionCode, sub.EmailToken, sub.UserID

	s.dispatcher.Dispatch(ctx, effectDisable, func(ctx context.Context) error {
		err := s.gateway.DisableSubscription(ctx, code, token)
		s.metrics.sideEffect(effectDisable, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to disable gateway subscription",
				logger.UserID(userID),
				logger.SubscriptionCode(code),
				logger.Error(err),
			)
			return err
		}
		s.logger.InfoContext(ctx, "gateway subscription disabled",
			logger.UserID(userID),
			logger.SubscriptionCode(code),
		)
		return nil
	})
}

// enrollRecurring creates the gateway subscription that renews a paid plan
// when the plan has a gateway plan code. The first recurring charge is
// scheduled for the end of the period just paid.
func (s *Service) enrollRecurring(ctx context.Context, userID uuid.UUID, plan Plan, pm *PaymentMethod) {
	if plan.GatewayPlanCode == "" || pm == nil || pm.CustomerCode == "" {
		return
	}
	customer, authCode := pm.CustomerCode, pm.AuthorizationCode

	s.dispatcher.Dispatch(ctx, effectEnroll, func(ctx context.Context) error {
		sub, err := s.store.GetSubscription(ctx, userID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		if sub.Status != StatusActive || sub.SubscriptionCode != "" {
			return nil
		}
		req := paystack.CreateSubscriptionRequest{
			Customer:      customer,
			Plan:          plan.GatewayPlanCode,
			Authorization: authCode,
		}
		if sub.CurrentPeriodEnd != nil {
			req.StartDate = &paystack.Time{Time: *sub.CurrentPeriodEnd}
		}

		created, err := s.gateway.CreateSubscription(ctx, req)
		s.metrics.sideEffect(effectEnroll, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to create gateway subscription",
				logger.UserID(userID),
				logger.Plan(plan.Type),
				logger.Error(err),
			)
			return err
		}
		return s.attachSubscriptionCode(ctx, userID, created.SubscriptionCode, created.EmailToken)
	})
}

// attachSubscriptionCode stores the gateway subscription identifiers on the
// user's live row. It never changes the status.
func (s *Service) attachSubscriptionCode(ctx context.Context, userID uuid.UUID, code, token string) error {
	if code == "" {
		return nil
	}
	return s.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		sub, err := tx.GetSubscription(ctx, userID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		if !sub.Status.Live() || (sub.SubscriptionCode == code && sub.EmailToken == token) {
			return nil
		}
		sub.SubscriptionCode = code
		if token != "" {
			sub.EmailToken = token
		}
		sub.UpdatedAt = s.now()
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		s.logger.InfoContext(ctx, "gateway subscription attached",
			logger.UserID(userID),
			logger.SubscriptionCode(code),
		)
		return nil
	})
}

func (s *Service) alert(ctx context.Context, a Alert) {
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver operator alert",
			slog.String("kind", a.Kind),
			logger.Reference(a.Reference),
			logger.Error(err),
		)
	}
}
