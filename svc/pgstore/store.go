// Package pgstore persists billing state in PostgreSQL.
//
// Every unit of work for a user runs in one transaction holding a
// transaction-scoped advisory lock on the user id, so concurrent webhook
// deliveries, API calls and sweeps for the same user are serialised while
// different users proceed in parallel.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeabuu/pdfworld/pkg/pg"
	"github.com/codeabuu/pdfworld/pkg/subscription"
)

// Migrations holds the goose migrations of the billing schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to pass to goose.
const MigrationsDir = "migrations"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements subscription.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ subscription.Store = (*Store)(nil)

// New creates a Store. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool}
}

func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return getSubscription(ctx, s.pool, userID)
}

func (s *Store) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]subscription.PaymentMethod, error) {
	return listPaymentMethods(ctx, s.pool, userID)
}

func (s *Store) FindSubscriptionByCode(ctx context.Context, code string) (*subscription.Subscription, error) {
	if code == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscription_code = $1 LIMIT 1`, code))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription by code: %w", err)
	}
	return sub, nil
}

func (s *Store) FindUserByCustomerCode(ctx context.Context, customerCode string) (uuid.UUID, error) {
	if customerCode == "" {
		return uuid.Nil, subscription.ErrUserNotResolved
	}
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM payment_methods WHERE customer_code = $1 ORDER BY created_at LIMIT 1`,
		customerCode).Scan(&userID)
	if pg.IsNotFoundError(err) {
		return uuid.Nil, subscription.ErrUserNotResolved
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find user by customer code: %w", err)
	}
	return userID, nil
}

// ListDueTrials pages through due trials by (trial_end, id). A zero cursor
// sorts before every stored row.
func (s *Store) ListDueTrials(ctx context.Context, now time.Time, after subscription.DueCursor, limit int) ([]subscription.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = $1 AND trial_end <= $2 AND (trial_end, id) > ($3, $4)
		 ORDER BY trial_end, id
		 LIMIT $5`,
		string(subscription.StatusTrialing), now, after.TrialEnd, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list due trials: %w", err)
	}
	defer rows.Close()

	var due []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due trial: %w", err)
		}
		due = append(due, *sub)
	}
	return due, rows.Err()
}

// Atomic runs fn in a transaction that holds the user's advisory lock.
func (s *Store) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx subscription.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgTx pgx.Tx) error {
		if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
			return fmt.Errorf("lock user %s: %w", userID, err)
		}
		return fn(ctx, &tx{q: pgTx, userID: userID})
	})
}

type tx struct {
	q      querier
	userID uuid.UUID
}

func (t *tx) checkUser(userID uuid.UUID) error {
	if userID != t.userID {
		return fmt.Errorf("unit of work for user %s cannot touch user %s", t.userID, userID)
	}
	return nil
}

func (t *tx) GetSubscription(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	if err := t.checkUser(userID); err != nil {
		return nil, err
	}
	return getSubscription(ctx, t.q, userID)
}

func (t *tx) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]subscription.PaymentMethod, error) {
	if err := t.checkUser(userID); err != nil {
		return nil, err
	}
	return listPaymentMethods(ctx, t.q, userID)
}

func (t *tx) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := t.checkUser(sub.UserID); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO subscriptions (
			id, user_id, plan, status, amount_minor,
			trial_start, trial_end, trial_used,
			current_period_start, current_period_end,
			subscription_code, email_token, payment_method_id, last_payment_ref,
			canceled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			amount_minor = EXCLUDED.amount_minor,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			trial_used = EXCLUDED.trial_used,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			subscription_code = EXCLUDED.subscription_code,
			email_token = EXCLUDED.email_token,
			payment_method_id = EXCLUDED.payment_method_id,
			last_payment_ref = EXCLUDED.last_payment_ref,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, string(sub.Plan), string(sub.Status), subscription.ToMinor(sub.Amount),
		sub.TrialStart, sub.TrialEnd, sub.TrialUsed,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.SubscriptionCode, sub.EmailToken, sub.PaymentMethodID, sub.LastPaymentRef,
		sub.CanceledAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (t *tx) SavePaymentMethod(ctx context.Context, pm *subscription.PaymentMethod) error {
	if err := t.checkUser(pm.UserID); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO payment_methods (
			id, user_id, authorization_code, customer_code, email, last4, card_type, bank,
			exp_month, exp_year, reusable, is_default, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			authorization_code = EXCLUDED.authorization_code,
			customer_code = EXCLUDED.customer_code,
			email = EXCLUDED.email,
			last4 = EXCLUDED.last4,
			card_type = EXCLUDED.card_type,
			bank = EXCLUDED.bank,
			exp_month = EXCLUDED.exp_month,
			exp_year = EXCLUDED.exp_year,
			reusable = EXCLUDED.reusable,
			is_default = EXCLUDED.is_default,
			updated_at = EXCLUDED.updated_at
		WHERE payment_methods.user_id = EXCLUDED.user_id`,
		pm.ID, pm.UserID, pm.AuthorizationCode, pm.CustomerCode, pm.Email, pm.Last4, pm.CardType, pm.Bank,
		pm.ExpMonth, pm.ExpYear, pm.Reusable, pm.IsDefault, pm.CreatedAt, pm.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err, "payment_methods_authorization_code_key") {
		return fmt.Errorf("%w: %s", subscription.ErrDuplicateAuthorization, pm.AuthorizationCode)
	}
	if err != nil {
		return fmt.Errorf("save payment method: %w", err)
	}
	return nil
}

func (t *tx) DeletePaymentMethod(ctx context.Context, userID, id uuid.UUID) error {
	if err := t.checkUser(userID); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrPaymentMethodNotFound
	}
	return nil
}

func (t *tx) PaymentApplied(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM applied_payments WHERE reference = $1)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check applied payment: %w", err)
	}
	return exists, nil
}

func (t *tx) RecordPayment(ctx context.Context, userID uuid.UUID, reference string, at time.Time) error {
	if err := t.checkUser(userID); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx,
		`INSERT INTO applied_payments (reference, user_id, applied_at) VALUES ($1, $2, $3)
		 ON CONFLICT (reference) DO NOTHING`,
		reference, userID, at)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("payment " + reference + " already applied")
	}
	return nil
}
