package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType identifies what a subscription row is paying for.
type PlanType string

const (
	PlanTrial   PlanType = "trial"
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// Paid reports whether the plan is billed.
func (p PlanType) Paid() bool {
	return p == PlanMonthly || p == PlanYearly
}

func (p PlanType) Valid() bool {
	return p == PlanTrial || p.Paid()
}

// Status is the entitlement state of a user's subscription.
// StatusNone stands for the absence of a row.
type Status string

const (
	StatusNone     Status = "none"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// Name makes Status usable as a state machine state.
func (s Status) Name() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusInactive, StatusExpired:
		return true
	}
	return false
}

// Live reports whether the status holds an entitlement slot. At most one
// row per user may be live.
func (s Status) Live() bool {
	return s == StatusTrialing || s == StatusActive
}

// Subscription is the single current entitlement snapshot of a user.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Plan   PlanType
	Status Status
	Amount decimal.Decimal

	TrialStart *time.Time
	TrialEnd   *time.Time
	TrialUsed  bool

	// Set only while Status is active
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	SubscriptionCode string
	EmailToken       string
	PaymentMethodID  *uuid.UUID

	// Gateway reference of the last payment applied to this row. Replays of
	// the same payment are recognised by it.
	LastPaymentRef string

	CanceledAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasAccess reports whether the user is entitled at the given time.
func (s *Subscription) HasAccess(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case StatusTrialing:
		return s.TrialEnd != nil && s.TrialEnd.After(now)
	case StatusActive:
		return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now)
	}
	return false
}

// InTrial reports whether a trial is running at the given time.
func (s *Subscription) InTrial(now time.Time) bool {
	return s != nil && s.Status == StatusTrialing && s.TrialEnd != nil && s.TrialEnd.After(now)
}

// TrialHasEnded reports whether a trial window existed and is over.
func (s *Subscription) TrialHasEnded(now time.Time) bool {
	return s != nil && s.TrialEnd != nil && !s.TrialEnd.After(now)
}

// TrialElapsed reports whether a trialing row is past its trial end.
func (s *Subscription) TrialElapsed(now time.Time) bool {
	return s != nil && s.Status == StatusTrialing && s.TrialEnd != nil && !s.TrialEnd.After(now)
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.TrialStart = cloneTime(s.TrialStart)
	c.TrialEnd = cloneTime(s.TrialEnd)
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.CanceledAt = cloneTime(s.CanceledAt)
	if s.PaymentMethodID != nil {
		id := *s.PaymentMethodID
		c.PaymentMethodID = &id
	}
	return &c
}

// PaymentMethod is a saved card authorization.
type PaymentMethod struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	AuthorizationCode string
	CustomerCode      string
	Email             string
	Last4             string
	CardType          string
	Bank              string
	ExpMonth          int
	ExpYear           int
	Reusable          bool
	IsDefault         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Expired reports whether the card expiry month is in the past.
func (pm PaymentMethod) Expired(now time.Time) bool {
	if pm.ExpYear == 0 || pm.ExpMonth == 0 {
		return false
	}
	// Cards are valid through the last day of the expiry month
	end := time.Date(pm.ExpYear, time.Month(pm.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.Before(end)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
