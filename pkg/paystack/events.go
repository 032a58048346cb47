package paystack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook event names.
const (
	EventChargeSuccess        = "charge.success"
	EventSubscriptionCreate   = "subscription.create"
	EventSubscriptionDisable  = "subscription.disable"
	EventSubscriptionNotRenew = "subscription.not_renew"
	EventInvoiceCreate        = "invoice.create"
	EventInvoiceUpdate        = "invoice.update"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Event is one decoded webhook delivery. The concrete type tells which
// fields are present; anything unrecognised decodes to Unknown.
type Event interface {
	Type() string
}

// ChargeSuccess reports a settled transaction.
type ChargeSuccess struct {
	Transaction Transaction
}

func (ChargeSuccess) Type() string { return EventChargeSuccess }

// SubscriptionCreated reports a recurring subscription Paystack has set up.
type SubscriptionCreated struct {
	Subscription Subscription
}

func (SubscriptionCreated) Type() string { return EventSubscriptionCreate }

// SubscriptionDisabled reports a recurring subscription that will never charge again.
type SubscriptionDisabled struct {
	Subscription Subscription
}

func (SubscriptionDisabled) Type() string { return EventSubscriptionDisable }

// SubscriptionNotRenewing reports a subscription that runs to the end of its period.
type SubscriptionNotRenewing struct {
	Subscription Subscription
}

func (SubscriptionNotRenewing) Type() string { return EventSubscriptionNotRenew }

// InvoiceCreated reports an upcoming recurring charge.
type InvoiceCreated struct {
	Invoice Invoice
}

func (InvoiceCreated) Type() string { return EventInvoiceCreate }

// InvoiceUpdated reports a change on an invoice, usually that it was paid.
type InvoiceUpdated struct {
	Invoice Invoice
}

func (InvoiceUpdated) Type() string { return EventInvoiceUpdate }

// InvoicePaymentFailed reports a recurring charge that could not be collected.
type InvoicePaymentFailed struct {
	Invoice Invoice
}

func (InvoicePaymentFailed) Type() string { return EventInvoicePaymentFailed }

// Unknown is any event this package does not model.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (u Unknown) Type() string { return u.Name }

var knownEvents = map[string]bool{
	EventChargeSuccess:        true,
	EventSubscriptionCreate:   true,
	EventSubscriptionDisable:  true,
	EventSubscriptionNotRenew: true,
	EventInvoiceCreate:        true,
	EventInvoiceUpdate:        true,
	EventInvoicePaymentFailed: true,
}

type rawEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseEvent decodes a raw webhook body into its typed variant.
// It fails only when the envelope itself is unusable or a known event has
// a data block of the wrong shape.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("%w: event name is missing", ErrMalformedEvent)
	}

	data := bytes.TrimSpace(raw.Data)
	if !knownEvents[raw.Event] {
		return Unknown{Name: raw.Event, Raw: raw.Data}, nil
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: %s data must be an object", ErrMalformedEvent, raw.Event)
	}

	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return errors.Join(ErrMalformedEvent, fmt.Errorf("%s: %w", raw.Event, err))
		}
		return nil
	}

	switch raw.Event {
	case EventChargeSuccess:
		var e ChargeSuccess
		if err := decode(&e.Transaction); err != nil {
			return nil, err
		}
		return e, nil
	case EventSubscriptionCreate:
		var e SubscriptionCreated
		if err := decode(&e.Subscription); err != nil {
			return nil, err
		}
		return e, nil
	case EventSubscriptionDisable:
		var e SubscriptionDisabled
		if err := decode(&e.Subscription); err != nil {
			return nil, err
		}
		return e, nil
	case EventSubscriptionNotRenew:
		var e SubscriptionNotRenewing
		if err := decode(&e.Subscription); err != nil {
			return nil, err
		}
		return e, nil
	case EventInvoiceCreate:
		var e InvoiceCreated
		if err := decode(&e.Invoice); err != nil {
			return nil, err
		}
		return e, nil
	case EventInvoiceUpdate:
		var e InvoiceUpdated
		if err := decode(&e.Invoice); err != nil {
			return nil, err
		}
		return e, nil
	default:
		var e InvoicePaymentFailed
		if err := decode(&e.Invoice); err != nil {
			return nil, err
		}
		return e, nil
	}
}
