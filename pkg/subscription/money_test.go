package subscription_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/codeabuu/pdfworld/pkg/subscription"
)

func TestToMinor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(50000), subscription.ToMinor(decimal.NewFromInt(500)))
	assert.Equal(t, int64(19900), subscription.ToMinor(decimal.RequireFromString("199")))
	assert.Equal(t, int64(1050), subscription.ToMinor(decimal.RequireFromString("10.499")))
	assert.Equal(t, int64(0), subscription.ToMinor(decimal.Zero))
}

func TestFromMinor(t *testing.T) {
	t.Parallel()

	assert.True(t, decimal.NewFromInt(500).Equal(subscription.FromMinor(50000)))
	assert.True(t, decimal.RequireFromString("0.05").Equal(subscription.FromMinor(5)))
	assert.True(t, subscription.FromMinor(0).IsZero())

	amount := decimal.RequireFromString("1234.56")
	assert.True(t, amount.Equal(subscription.FromMinor(subscription.ToMinor(amount))))
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount string
		code   string
		want   string
	}{
		{"500", "NGN", "NGN 500.00"},
		{"199.9", "ngn", "NGN 199.90"},
		// Beyond float64 precision
		{"90071992547409.93", "NGN", "NGN 90071992547409.93"},
		{"0.005", "USD", "USD 0.01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subscription.FormatAmount(decimal.RequireFromString(tt.amount), tt.code), tt.amount)
	}

	assert.Equal(t, "12.50", subscription.FormatAmount(decimal.RequireFromString("12.5"), "not-a-currency"))
}
