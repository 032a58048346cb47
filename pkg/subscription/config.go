package subscription

import "time"

// Config holds the billing rules that are deployment specific.
type Config struct {
	TrialDuration           time.Duration `env:"TRIAL_DURATION" envDefault:"168h"`
	TrialVerificationAmount int64         `env:"TRIAL_VERIFICATION_AMOUNT" envDefault:"19900"` // minor units
	MaxCardsPerUser         int           `env:"MAX_CARDS_PER_USER" envDefault:"3"`
	Currency                string        `env:"CURRENCY" envDefault:"NGN"`
	PlansFile               string        `env:"PLANS_FILE"`
	SweepConcurrency        int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`
	SweepBatchSize          int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	WebhookDedupeTTL        time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"72h"`
	SideEffectTimeout       time.Duration `env:"SIDE_EFFECT_TIMEOUT" envDefault:"10s"`
	AlertEmail              string        `env:"ALERT_EMAIL"`
}

// DefaultConfig mirrors the env defaults for callers that do not load from the environment.
func DefaultConfig() Config {
	return Config{
		TrialDuration:           7 * 24 * time.Hour,
		TrialVerificationAmount: 19900,
		MaxCardsPerUser:         3,
		Currency:                "NGN",
		SweepConcurrency:        4,
		SweepBatchSize:          100,
		WebhookDedupeTTL:        72 * time.Hour,
		SideEffectTimeout:       10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TrialDuration <= 0 {
		c.TrialDuration = d.TrialDuration
	}
	if c.TrialVerificationAmount <= 0 {
		c.TrialVerificationAmount = d.TrialVerificationAmount
	}
	if c.MaxCardsPerUser <= 0 {
		c.MaxCardsPerUser = d.MaxCardsPerUser
	}
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = d.SweepConcurrency
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = d.SweepBatchSize
	}
	if c.WebhookDedupeTTL <= 0 {
		c.WebhookDedupeTTL = d.WebhookDedupeTTL
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = d.SideEffectTimeout
	}
	return c
}
