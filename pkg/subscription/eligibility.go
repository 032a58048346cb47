package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Eligibility is the answer to "may this user start a free trial".
type Eligibility struct {
	Eligible bool
	Reason   ErrorCode
	Message  string
}

// EvaluateTrialEligibility decides trial eligibility from a user's current
// row. ALREADY_ACTIVE is checked before TRIAL_USED.
func EvaluateTrialEligibility(sub *Subscription) Eligibility {
	switch {
	case sub != nil && sub.Status.Live():
		return Eligibility{Reason: CodeAlreadyActive, Message: ErrAlreadyActive.Error()}
	case sub != nil && sub.TrialUsed:
		return Eligibility{Reason: CodeTrialUsed, Message: ErrTrialUsed.Error()}
	default:
		return Eligibility{Eligible: true, Message: "eligible for a free trial"}
	}
}

// Err returns the domain error matching an ineligible answer.
func (e Eligibility) Err() error {
	switch e.Reason {
	case CodeAlreadyActive:
		return ErrAlreadyActive
	case CodeTrialUsed:
		return ErrTrialUsed
	}
	return nil
}

// TrialEligibilityPolicy reads the store to evaluate trial eligibility. The
// answer may be stale by the time it is acted on, so writers re-check it
// inside their own unit of work.
type TrialEligibilityPolicy struct {
	store Reader
}

func NewTrialEligibilityPolicy(store Reader) *TrialEligibilityPolicy {
	return &TrialEligibilityPolicy{store: store}
}

// Evaluate returns the user's trial eligibility.
func (p *TrialEligibilityPolicy) Evaluate(ctx context.Context, userID uuid.UUID) (Eligibility, error) {
	sub, err := p.store.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return Eligibility{}, fmt.Errorf("load subscription: %w", err)
	}
	return EvaluateTrialEligibility(sub), nil
}
