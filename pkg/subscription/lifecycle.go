package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/statemachine"
)

// Lifecycle events.
const (
	EventTrialVerified    = statemachine.StringEvent("trial_verified")
	EventPaymentSucceeded = statemachine.StringEvent("payment_succeeded")
	EventRenewed          = statemachine.StringEvent("renewed")
	EventCanceled         = statemachine.StringEvent("canceled")
	EventPaymentFailed    = statemachine.StringEvent("payment_failed")
	EventTrialLapsed      = statemachine.StringEvent("trial_lapsed")
	EventExpired          = statemachine.StringEvent("expired")
	EventDeactivated      = statemachine.StringEvent("deactivated")
)

// change is the input of one transition. Actions mutate sub in place.
type change struct {
	now  time.Time
	sub  *Subscription
	plan Plan

	reference       string
	paymentMethodID *uuid.UUID
	trialDuration   time.Duration

	// requireFrom skips the event unless the persisted status matches.
	requireFrom Status
}

// Outcome describes what a call into the lifecycle did.
type Outcome struct {
	From    Status
	To      Status
	Applied bool
	// Reason is set when nothing was applied.
	Reason string
}

const (
	reasonReplay       = "replay"
	reasonNoTransition = "no_transition"
	reasonRejected     = "rejected"
	reasonStale        = "stale"
)

func newLifecycleTable() *statemachine.Table {
	var (
		anyStatus = []Status{StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusInactive, StatusExpired}
		defs      []statemachine.TransitionDef
	)
	add := func(event statemachine.Event, to Status, action statemachine.Action, guard statemachine.Guard, from ...Status) {
		for _, f := range from {
			def := statemachine.TransitionDef{From: f, To: to, Event: event, Actions: []statemachine.Action{action}}
			if guard != nil {
				def.Guards = []statemachine.Guard{guard}
			}
			defs = append(defs, def)
		}
	}

	// A late trial event never moves a row that already exists
	add(EventTrialVerified, StatusTrialing, startTrial, nil, StatusNone)

	// Paid beats trial whatever the arrival order
	add(EventPaymentSucceeded, StatusActive, activate, nil,
		StatusNone, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusInactive, StatusExpired)

	add(EventRenewed, StatusActive, renew, nil, StatusActive, StatusPastDue)
	add(EventCanceled, StatusCanceled, cancel, nil, StatusTrialing, StatusActive, StatusPastDue)
	add(EventPaymentFailed, StatusPastDue, markPastDue, nil, StatusTrialing, StatusActive)
	add(EventTrialLapsed, StatusCanceled, cancel, trialElapsed, StatusTrialing)
	add(EventExpired, StatusExpired, closeRow, nil, anyStatus...)
	add(EventDeactivated, StatusInactive, closeRow, nil, anyStatus...)

	return statemachine.MustNew(statemachine.WithTransitions(defs))
}

func trialElapsed(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	c := data.(*change)
	return c.sub.TrialElapsed(c.now)
}

func startTrial(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	s := c.sub
	end := c.now.Add(c.trialDuration)
	s.Plan = PlanTrial
	s.Status = StatusTrialing
	s.Amount = c.plan.Amount
	s.TrialUsed = true
	s.TrialStart = timePtr(c.now)
	s.TrialEnd = &end
	if c.paymentMethodID != nil {
		s.PaymentMethodID = c.paymentMethodID
	}
	s.CanceledAt = nil
	return nil
}

func activate(_ context.Context, from, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	if !c.plan.Type.Paid() {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, c.plan.Type)
	}
	s := c.sub

	start := c.now
	// Paying again for the same running plan extends it instead of restarting the period
	if from == StatusActive && s.Plan == c.plan.Type && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(c.now) {
		start = *s.CurrentPeriodEnd
	}
	// A fresh start drops the link to a gateway subscription that no longer renews
	if from != StatusActive && from != StatusPastDue {
		s.SubscriptionCode = ""
		s.EmailToken = ""
	}
	end := start.Add(c.plan.Period)

	s.Plan = c.plan.Type
	s.Status = StatusActive
	s.Amount = c.plan.Amount
	s.TrialUsed = true
	s.CurrentPeriodStart = timePtr(start)
	s.CurrentPeriodEnd = &end
	if c.paymentMethodID != nil {
		s.PaymentMethodID = c.paymentMethodID
	}
	s.CanceledAt = nil
	return nil
}

func renew(_ context.Context, from, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	s := c.sub
	plan := c.plan
	if plan.Period <= 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, s.Plan)
	}

	start := c.now
	if from == StatusActive && s.CurrentPeriodEnd != nil {
		start = *s.CurrentPeriodEnd
	}
	end := start.Add(plan.Period)
	s.Status = StatusActive
	s.CurrentPeriodStart = timePtr(start)
	s.CurrentPeriodEnd = &end
	return nil
}

func cancel(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.sub.Status = StatusCanceled
	c.sub.CanceledAt = timePtr(c.now)
	return nil
}

func markPastDue(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	data.(*change).sub.Status = StatusPastDue
	return nil
}

func closeRow(_ context.Context, _, to statemachine.State, _ statemachine.Event, data any) error {
	data.(*change).sub.Status = to.(Status)
	return nil
}

// lifecycle applies events to the persisted subscription of a user.
type lifecycle struct {
	table   *statemachine.Table
	catalog *Catalog
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

// fire loads the user's row inside tx, runs event against its persisted
// status and saves the result. It returns an Outcome with Applied=false and
// a nil error when the event does not apply to the current state.
func (l *lifecycle) fire(ctx context.Context, tx Tx, userID uuid.UUID, event statemachine.Event, c *change) (Outcome, error) {
	current, err := tx.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return Outcome{}, fmt.Errorf("load subscription: %w", err)
	}

	from := StatusNone
	if current != nil {
		from = current.Status
	} else {
		current = &Subscription{ID: uuid.New(), UserID: userID, CreatedAt: c.now}
	}
	out := Outcome{From: from, To: from}

	if c.reference != "" {
		seen := current.LastPaymentRef == c.reference
		if !seen {
			if seen, err = tx.PaymentApplied(ctx, c.reference); err != nil {
				return out, fmt.Errorf("check payment reference: %w", err)
			}
		}
		if seen {
			out.Reason = reasonReplay
			return out, nil
		}
	}

	if c.requireFrom != "" && from != c.requireFrom {
		out.Reason = reasonStale
		return out, nil
	}

	if event == EventRenewed && c.plan.Type == "" {
		if c.plan, err = l.catalog.Plan(current.Plan); err != nil {
			return out, err
		}
	}
	if c.trialDuration == 0 {
		c.trialDuration = l.cfg.TrialDuration
	}

	c.sub = current.Clone()
	to, err := l.table.Fire(ctx, from, event, c)
	switch {
	case statemachine.IsNoTransitionAvailableError(err):
		out.Reason = reasonNoTransition
	case statemachine.IsTransitionRejectedError(err):
		out.Reason = reasonRejected
	case err != nil:
		return out, err
	}
	if out.Reason != "" {
		// An ignored payment is still consumed so its replays stay ignored
		if c.reference != "" {
			if err := tx.RecordPayment(ctx, userID, c.reference, c.now); err != nil {
				return out, fmt.Errorf("record payment reference: %w", err)
			}
		}
		l.logger.DebugContext(ctx, "subscription event ignored",
			logger.UserID(userID),
			slog.String("trigger", event.Name()),
			slog.String("status", string(from)),
			slog.String("reason", out.Reason),
		)
		return out, nil
	}

	next := c.sub
	if next.Status != StatusActive {
		next.CurrentPeriodStart = nil
		next.CurrentPeriodEnd = nil
	}
	if c.reference != "" {
		next.LastPaymentRef = c.reference
	}
	next.UpdatedAt = c.now

	if err := tx.SaveSubscription(ctx, next); err != nil {
		return out, fmt.Errorf("save subscription: %w", err)
	}
	if c.reference != "" {
		if err := tx.RecordPayment(ctx, userID, c.reference, c.now); err != nil {
			return out, fmt.Errorf("record payment reference: %w", err)
		}
	}

	out.To = to.(Status)
	out.Applied = true
	l.metrics.transition(out.From, out.To, event.Name())
	l.logger.InfoContext(ctx, "subscription transition",
		logger.UserID(userID),
		logger.Transition(out.From, out.To),
		slog.String("trigger", event.Name()),
		logger.Plan(next.Plan),
		logger.Reference(c.reference),
	)
	return out, nil
}

func (l *lifecycle) canFire(ctx context.Context, sub *Subscription, event statemachine.Event, now time.Time) bool {
	from := StatusNone
	if sub != nil {
		from = sub.Status
	}
	return l.table.CanFire(ctx, from, event, &change{now: now, sub: sub.Clone()})
}
