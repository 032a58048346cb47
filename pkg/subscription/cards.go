package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
)

// PaymentMethodRegistry owns the saved cards of each user.
type PaymentMethodRegistry struct {
	store    Store
	maxCards int
	now      func() time.Time
	logger   *slog.Logger
}

// NewPaymentMethodRegistry creates a registry over store.
func NewPaymentMethodRegistry(store Store, maxCards int, log *slog.Logger) *PaymentMethodRegistry {
	if store == nil {
		panic("subscription: Store is required")
	}
	if maxCards <= 0 {
		maxCards = DefaultConfig().MaxCardsPerUser
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaymentMethodRegistry{store: store, maxCards: maxCards, now: time.Now, logger: log}
}

// List returns the user's billing eligible cards, default first then newest first.
func (r *PaymentMethodRegistry) List(ctx context.Context, userID uuid.UUID) ([]PaymentMethod, error) {
	all, err := r.store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return usable(all), nil
}

// Save stores a verified reusable authorization for the user.
func (r *PaymentMethodRegistry) Save(ctx context.Context, userID uuid.UUID, auth paystack.Authorization, customer paystack.Customer) (*PaymentMethod, error) {
	var saved *PaymentMethod
	err := r.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		var err error
		saved, err = r.save(ctx, tx, userID, auth, customer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// save upserts by authorization code and enforces the per-user cap. It must
// run inside the user's unit of work so the count and the insert are atomic.
func (r *PaymentMethodRegistry) save(ctx context.Context, tx Tx, userID uuid.UUID, auth paystack.Authorization, customer paystack.Customer) (*PaymentMethod, error) {
	if auth.AuthorizationCode == "" {
		return nil, fmt.Errorf("%w: authorization code is missing", ErrNotReusable)
	}
	if !auth.Reusable {
		return nil, ErrNotReusable
	}

	methods, err := tx.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	now := r.now()

	if i := slices.IndexFunc(methods, func(pm PaymentMethod) bool {
		return pm.AuthorizationCode == auth.AuthorizationCode
	}); i >= 0 {
		pm := methods[i]
		applyAuthorization(&pm, auth, customer)
		pm.UpdatedAt = now
		if err := tx.SavePaymentMethod(ctx, &pm); err != nil {
			return nil, fmt.Errorf("update payment method: %w", err)
		}
		return &pm, nil
	}

	live := usable(methods)
	if len(live) >= r.maxCards {
		return nil, ErrCardLimitReached
	}

	pm := PaymentMethod{
		ID:        uuid.New(),
		UserID:    userID,
		IsDefault: !slices.ContainsFunc(live, func(pm PaymentMethod) bool { return pm.IsDefault }),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyAuthorization(&pm, auth, customer)
	if err := tx.SavePaymentMethod(ctx, &pm); err != nil {
		return nil, fmt.Errorf("insert payment method: %w", err)
	}

	r.logger.InfoContext(ctx, "payment method saved",
		logger.UserID(userID),
		logger.PaymentMethodID(pm.ID),
		slog.String("last4", pm.Last4),
		slog.Bool("default", pm.IsDefault),
	)
	return &pm, nil
}

// SetDefault makes methodID the user's only default card and points a live
// subscription at it.
func (r *PaymentMethodRegistry) SetDefault(ctx context.Context, userID, methodID uuid.UUID) (*PaymentMethod, error) {
	var target *PaymentMethod
	err := r.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		methods, err := tx.ListPaymentMethods(ctx, userID)
		if err != nil {
			return fmt.Errorf("list payment methods: %w", err)
		}
		i := slices.IndexFunc(methods, func(pm PaymentMethod) bool { return pm.ID == methodID })
		if i < 0 {
			return ErrPaymentMethodNotFound
		}
		if !methods[i].Reusable {
			return ErrNotReusable
		}

		now := r.now()
		for j := range methods {
			want := j == i
			if methods[j].IsDefault == want {
				continue
			}
			methods[j].IsDefault = want
			methods[j].UpdatedAt = now
			if err := tx.SavePaymentMethod(ctx, &methods[j]); err != nil {
				return fmt.Errorf("save payment method: %w", err)
			}
		}
		target = &methods[i]

		sub, err := tx.GetSubscription(ctx, userID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		if sub.Status.Live() {
			sub.PaymentMethodID = &methodID
			sub.UpdatedAt = now
			if err := tx.SaveSubscription(ctx, sub); err != nil {
				return fmt.Errorf("save subscription: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// Remove deletes a saved card unless a live subscription references it.
func (r *PaymentMethodRegistry) Remove(ctx context.Context, userID, methodID uuid.UUID) error {
	return r.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		methods, err := tx.ListPaymentMethods(ctx, userID)
		if err != nil {
			return fmt.Errorf("list payment methods: %w", err)
		}
		i := slices.IndexFunc(methods, func(pm PaymentMethod) bool { return pm.ID == methodID })
		if i < 0 {
			return ErrPaymentMethodNotFound
		}
		removed := methods[i]

		sub, err := tx.GetSubscription(ctx, userID)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return fmt.Errorf("load subscription: %w", err)
		}
		if sub != nil && sub.Status.Live() && sub.PaymentMethodID != nil && *sub.PaymentMethodID == methodID {
			return ErrPaymentMethodInUse
		}

		if err := tx.DeletePaymentMethod(ctx, userID, methodID); err != nil {
			return fmt.Errorf("delete payment method: %w", err)
		}

		if removed.IsDefault {
			rest := usable(slices.Delete(methods, i, i+1))
			if len(rest) > 0 {
				next := rest[0]
				next.IsDefault = true
				next.UpdatedAt = r.now()
				if err := tx.SavePaymentMethod(ctx, &next); err != nil {
					return fmt.Errorf("promote default payment method: %w", err)
				}
			}
		}

		r.logger.InfoContext(ctx, "payment method removed", logger.UserID(userID), logger.PaymentMethodID(methodID))
		return nil
	})
}

// usable filters reusable methods and orders them default first, newest first.
func usable(methods []PaymentMethod) []PaymentMethod {
	out := make([]PaymentMethod, 0, len(methods))
	for _, pm := range methods {
		if pm.Reusable {
			out = append(out, pm)
		}
	}
	slices.SortStableFunc(out, func(a, b PaymentMethod) int {
		if a.IsDefault != b.IsDefault {
			if a.IsDefault {
				return -1
			}
			return 1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// defaultMethod picks the card recurring charges should use.
func defaultMethod(methods []PaymentMethod) (PaymentMethod, bool) {
	live := usable(methods)
	if len(live) == 0 {
		return PaymentMethod{}, false
	}
	return live[0], true
}

func applyAuthorization(pm *PaymentMethod, auth paystack.Authorization, customer paystack.Customer) {
	pm.AuthorizationCode = auth.AuthorizationCode
	pm.Last4 = auth.Last4
	pm.CardType = strings.TrimSpace(auth.CardType)
	pm.Bank = auth.Bank
	pm.ExpMonth = auth.ExpMonth.Int()
	pm.ExpYear = auth.ExpYear.Int()
	pm.Reusable = auth.Reusable
	if customer.CustomerCode != "" {
		pm.CustomerCode = customer.CustomerCode
	}
	if customer.Email != "" {
		pm.Email = customer.Email
	}
}
