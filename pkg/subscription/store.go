package subscription

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader exposes the reads a single user's billing state needs.
type Reader interface {
	// GetSubscription returns the user's current row or ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	// ListPaymentMethods returns every saved method of the user, in no particular order.
	ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]PaymentMethod, error)
}

// Tx is a unit of work scoped to one user. Reads inside it observe the
// persisted state and the writes already made in the same unit.
type Tx interface {
	Reader
	SaveSubscription(ctx context.Context, sub *Subscription) error
	SavePaymentMethod(ctx context.Context, pm *PaymentMethod) error
	DeletePaymentMethod(ctx context.Context, userID, id uuid.UUID) error

	// PaymentApplied reports whether a gateway payment reference has already
	// been applied to any subscription.
	PaymentApplied(ctx context.Context, reference string) (bool, error)
	// RecordPayment remembers that reference has been applied for userID.
	RecordPayment(ctx context.Context, userID uuid.UUID, reference string, at time.Time) error
}

// Store persists subscriptions and payment methods.
//
// Atomic must serialise all units of work for the same user and commit the
// unit only when fn returns nil. Units for different users are independent.
type Store interface {
	Reader
	Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	// FindSubscriptionByCode looks a row up by its gateway subscription code.
	FindSubscriptionByCode(ctx context.Context, code string) (*Subscription, error)
	// FindUserByCustomerCode resolves a gateway customer to the user owning
	// one of its saved methods, or returns ErrUserNotResolved.
	FindUserByCustomerCode(ctx context.Context, customerCode string) (uuid.UUID, error)
	// ListDueTrials returns trialing rows whose trial ended at or before now
	// and that sort after the cursor, ordered by trial end then id.
	ListDueTrials(ctx context.Context, now time.Time, after DueCursor, limit int) ([]Subscription, error)
}

// DueCursor is a position in the due-trial ordering. The zero value starts
// from the oldest due trial.
type DueCursor struct {
	TrialEnd time.Time
	ID       uuid.UUID
}

// CursorAfter returns the position just past sub.
func CursorAfter(sub Subscription) DueCursor {
	c := DueCursor{ID: sub.ID}
	if sub.TrialEnd != nil {
		c.TrialEnd = *sub.TrialEnd
	}
	return c
}

// Precedes reports whether c sorts before sub.
func (c DueCursor) Precedes(sub Subscription) bool {
	if sub.TrialEnd == nil {
		return false
	}
	if cmp := sub.TrialEnd.Compare(c.TrialEnd); cmp != 0 {
		return cmp > 0
	}
	return bytes.Compare(sub.ID[:], c.ID[:]) > 0
}
