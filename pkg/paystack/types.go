package paystack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Transaction types carried in metadata.type.
const (
	TypeTrialVerification   = "trial_verification"
	TypeSubscriptionPayment = "subscription_payment"
	TypeCardVerification    = "card_verification"
)

// Transaction statuses reported by Paystack.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusReversed  = "reversed"
)

// Time accepts RFC3339 timestamps, empty strings and null.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("paystack time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Ptr returns nil for a zero time.
func (t Time) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// FlexString decodes both JSON strings and numbers, Paystack sends card
// expiry fields either way.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Int parses the value as an integer, returning zero when it is not one.
func (s FlexString) Int() int {
	n, _ := strconv.Atoi(string(s))
	return n
}

// Metadata is the subset of transaction metadata this service sets and reads.
// Paystack echoes metadata back either as an object, a JSON encoded string,
// an empty string or null.
type Metadata struct {
	UserID   string `json:"user_id,omitempty"`
	PlanType string `json:"plan_type,omitempty"`
	Type     string `json:"type,omitempty"`
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	*m = Metadata{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		if inner == "" {
			return nil
		}
		b = []byte(inner)
	}
	if b[0] != '{' {
		// Scalars carry nothing we can use
		return nil
	}

	type plain Metadata
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("paystack metadata: %w", err)
	}
	*m = Metadata(v)
	return nil
}

// Authorization is a card authorization returned with a successful charge.
type Authorization struct {
	AuthorizationCode string     `json:"authorization_code"`
	Bin               string     `json:"bin"`
	Last4             string     `json:"last4"`
	ExpMonth          FlexString `json:"exp_month"`
	ExpYear           FlexString `json:"exp_year"`
	Channel           string     `json:"channel"`
	CardType          string     `json:"card_type"`
	Bank              string     `json:"bank"`
	CountryCode       string     `json:"country_code"`
	Brand             string     `json:"brand"`
	Reusable          bool       `json:"reusable"`
	Signature         string     `json:"signature"`
}

// Customer is the Paystack customer attached to a transaction or subscription.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// Plan is the Paystack plan attached to a recurring transaction.
type Plan struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
	Amount   int64  `json:"amount"`
}

// Transaction is a Paystack transaction as returned by verify, charge and charge.success.
type Transaction struct {
	ID              int64         `json:"id"`
	Status          string        `json:"status"`
	Reference       string        `json:"reference"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Channel         string        `json:"channel"`
	GatewayResponse string        `json:"gateway_response"`
	PaidAt          Time          `json:"paid_at"`
	CreatedAt       Time          `json:"created_at"`
	Metadata        Metadata      `json:"metadata"`
	Authorization   Authorization `json:"authorization"`
	Customer        Customer      `json:"customer"`
	Plan            *Plan         `json:"plan,omitempty"`
}

// Succeeded reports whether the transaction settled.
func (t Transaction) Succeeded() bool {
	return t.Status == StatusSuccess
}

// InitializeRequest starts a hosted payment page.
type InitializeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// InitializeResponse carries the redirect target for the customer.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// ChargeRequest charges a saved reusable authorization.
type ChargeRequest struct {
	Email             string   `json:"email"`
	Amount            int64    `json:"amount"`
	Currency          string   `json:"currency,omitempty"`
	AuthorizationCode string   `json:"authorization_code"`
	Reference         string   `json:"reference,omitempty"`
	Metadata          Metadata `json:"metadata"`
}

// RefundRequest refunds a transaction by reference or id. A zero amount refunds in full.
type RefundRequest struct {
	Transaction string `json:"transaction"`
	Amount      int64  `json:"amount,omitempty"`
	Reason      string `json:"merchant_note,omitempty"`
}

// Refund is the refund record created by Paystack.
type Refund struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Transaction struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	} `json:"transaction"`
}

// CreateSubscriptionRequest enrolls a customer on a recurring plan.
type CreateSubscriptionRequest struct {
	Customer      string `json:"customer"`
	Plan          string `json:"plan"`
	Authorization string `json:"authorization,omitempty"`
	StartDate     *Time  `json:"start_date,omitempty"`
}

// Subscription is a Paystack recurring subscription.
type Subscription struct {
	ID               int64         `json:"id"`
	SubscriptionCode string        `json:"subscription_code"`
	EmailToken       string        `json:"email_token"`
	Status           string        `json:"status"`
	Amount           int64         `json:"amount"`
	NextPaymentDate  Time          `json:"next_payment_date"`
	CreatedAt        Time          `json:"createdAt"`
	Plan             Plan          `json:"plan"`
	Customer         Customer      `json:"customer"`
	Authorization    Authorization `json:"authorization"`
}

// Invoice is a recurring billing invoice as delivered by invoice.* events.
type Invoice struct {
	InvoiceCode   string        `json:"invoice_code"`
	Amount        int64         `json:"amount"`
	Status        string        `json:"status"`
	Paid          bool          `json:"paid"`
	PaidAt        Time          `json:"paid_at"`
	PeriodStart   Time          `json:"period_start"`
	PeriodEnd     Time          `json:"period_end"`
	Subscription  Subscription  `json:"subscription"`
	Customer      Customer      `json:"customer"`
	Transaction   Transaction   `json:"transaction"`
	Authorization Authorization `json:"authorization"`
}
