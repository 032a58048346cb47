package paystack

import "time"

// Config holds Paystack API settings.
type Config struct {
	SecretKey   string        `env:"PAYSTACK_SECRET_KEY,required"`
	BaseURL     string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	Timeout     time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"30s"`
	CallbackURL string        `env:"PAYSTACK_CALLBACK_URL"`

	// Circuit breaker around outbound calls
	BreakerFailures int           `env:"PAYSTACK_BREAKER_FAILURES" envDefault:"5"`
	BreakerRecovery time.Duration `env:"PAYSTACK_BREAKER_RECOVERY" envDefault:"30s"`
}
