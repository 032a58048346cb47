package subscription_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabuu/pdfworld/pkg/subscription"
)

func TestEvaluateTrialEligibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sub      *subscription.Subscription
		eligible bool
		reason   subscription.ErrorCode
		err      error
	}{
		{"no row", nil, true, "", nil},
		{"trialing", &subscription.Subscription{Status: subscription.StatusTrialing, TrialUsed: true}, false, subscription.CodeAlreadyActive, subscription.ErrAlreadyActive},
		{"active", &subscription.Subscription{Status: subscription.StatusActive, TrialUsed: true}, false, subscription.CodeAlreadyActive, subscription.ErrAlreadyActive},
		{"past due after trial", &subscription.Subscription{Status: subscription.StatusPastDue, TrialUsed: true}, false, subscription.CodeTrialUsed, subscription.ErrTrialUsed},
		{"canceled after trial", &subscription.Subscription{Status: subscription.StatusCanceled, TrialUsed: true}, false, subscription.CodeTrialUsed, subscription.ErrTrialUsed},
		{"expired after trial", &subscription.Subscription{Status: subscription.StatusExpired, TrialUsed: true}, false, subscription.CodeTrialUsed, subscription.ErrTrialUsed},
		{"canceled without trial", &subscription.Subscription{Status: subscription.StatusCanceled}, true, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			el := subscription.EvaluateTrialEligibility(tt.sub)
			assert.Equal(t, tt.eligible, el.Eligible)
			assert.Equal(t, tt.reason, el.Reason)
			assert.NotEmpty(t, el.Message)
			assert.Equal(t, tt.err, el.Err())
		})
	}
}

func TestTrialEligibilityPolicy_Evaluate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	policy := subscription.NewTrialEligibilityPolicy(f.store)

	userID := uuid.New()
	el, err := policy.Evaluate(ctx, userID)
	require.NoError(t, err)
	assert.True(t, el.Eligible)

	f.startTrial(t, userID, "AUTH_E001")
	el, err = policy.Evaluate(ctx, userID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, subscription.CodeAlreadyActive, el.Reason)
}
