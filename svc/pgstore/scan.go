package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeabuu/pdfworld/pkg/pg"
	"github.com/codeabuu/pdfworld/pkg/subscription"
)

const subscriptionColumns = `id, user_id, plan, status, amount_minor,
	trial_start, trial_end, trial_used,
	current_period_start, current_period_end,
	subscription_code, email_token, payment_method_id, last_payment_ref,
	canceled_at, created_at, updated_at`

const paymentMethodColumns = `id, user_id, authorization_code, customer_code, email, last4, card_type, bank,
	exp_month, exp_year, reusable, is_default, created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub          subscription.Subscription
		plan, status string
		amountMinor  int64
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &plan, &status, &amountMinor,
		&sub.TrialStart, &sub.TrialEnd, &sub.TrialUsed,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.SubscriptionCode, &sub.EmailToken, &sub.PaymentMethodID, &sub.LastPaymentRef,
		&sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Plan = subscription.PlanType(plan)
	sub.Status = subscription.Status(status)
	sub.Amount = subscription.FromMinor(amountMinor)
	return &sub, nil
}

func scanPaymentMethod(row pgx.Row) (subscription.PaymentMethod, error) {
	var pm subscription.PaymentMethod
	err := row.Scan(
		&pm.ID, &pm.UserID, &pm.AuthorizationCode, &pm.CustomerCode, &pm.Email, &pm.Last4, &pm.CardType, &pm.Bank,
		&pm.ExpMonth, &pm.ExpYear, &pm.Reusable, &pm.IsDefault, &pm.CreatedAt, &pm.UpdatedAt,
	)
	return pm, err
}

func getSubscription(ctx context.Context, q querier, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func listPaymentMethods(ctx context.Context, q querier, userID uuid.UUID) ([]subscription.PaymentMethod, error) {
	rows, err := q.Query(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []subscription.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}
