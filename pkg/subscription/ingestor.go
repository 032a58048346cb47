package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
	"github.com/codeabuu/pdfworld/pkg/webhook"
)

// Webhook outcomes used in logs and metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// IngestResult describes how an accepted delivery was handled.
type IngestResult struct {
	Event   string
	Outcome string
	Reason  string
}

// WebhookIngestor authenticates gateway deliveries and routes them into the
// lifecycle. Errors it returns classify the delivery: ErrInvalidSignature and
// ErrMalformedPayload must not be retried, anything else should be.
type WebhookIngestor struct {
	svc    *Service
	secret string
	ttl    time.Duration
}

// NewWebhookIngestor creates an ingestor verifying deliveries with secret.
func NewWebhookIngestor(svc *Service, secret string) *WebhookIngestor {
	if svc == nil {
		panic("subscription: Service is required")
	}
	return &WebhookIngestor{svc: svc, secret: secret, ttl: svc.cfg.WebhookDedupeTTL}
}

// Ingest handles one raw delivery.
func (w *WebhookIngestor) Ingest(ctx context.Context, body []byte, signature string) (IngestResult, error) {
	log := w.svc.logger

	if err := webhook.VerifySignature(w.secret, body, signature); err != nil {
		w.svc.metrics.webhook("unknown", OutcomeRejected)
		log.WarnContext(ctx, "webhook signature rejected",
			logger.SecurityEvent("webhook_signature"),
			logger.Error(err),
		)
		return IngestResult{Outcome: OutcomeRejected}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	evt, err := paystack.ParseEvent(body)
	if err != nil {
		w.svc.metrics.webhook("unknown", OutcomeRejected)
		log.WarnContext(ctx, "malformed webhook payload", logger.Error(err))
		return IngestResult{Outcome: OutcomeRejected}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	res := IngestResult{Event: evt.Type()}
	log = log.With(logger.EventType(evt.Type()))

	key := DeliveryKey(body)
	if seen, err := w.svc.dedupe.Seen(ctx, key); err != nil {
		log.WarnContext(ctx, "webhook dedupe lookup failed", logger.Error(err))
	} else if seen {
		res.Outcome = OutcomeDuplicate
		w.svc.metrics.webhook(res.Event, res.Outcome)
		log.DebugContext(ctx, "duplicate webhook delivery")
		return res, nil
	}

	out, err := w.route(ctx, evt)
	switch {
	case errors.Is(err, ErrUserNotResolved):
		res.Outcome, res.Reason = OutcomeIgnored, "user_not_resolved"
		log.WarnContext(ctx, "webhook for unknown user ignored")
	case err != nil:
		res.Outcome = OutcomeFailed
		w.svc.metrics.webhook(res.Event, res.Outcome)
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		return res, err
	case out.Applied:
		res.Outcome = OutcomeApplied
	default:
		res.Outcome, res.Reason = OutcomeIgnored, out.Reason
	}

	if err := w.svc.dedupe.Mark(ctx, key, w.ttl); err != nil {
		log.WarnContext(ctx, "failed to remember webhook delivery", logger.Error(err))
	}
	w.svc.metrics.webhook(res.Event, res.Outcome)
	log.InfoContext(ctx, "webhook processed",
		slog.String("outcome", res.Outcome),
		slog.String("reason", res.Reason),
	)
	return res, nil
}

const (
	reasonUnknownEvent = "unknown_event"
	reasonNotHandled   = "not_handled"
	reasonUnpaid       = "unpaid"
	reasonNoReference  = "no_reference"

	reasonUnknownSubscription = "unknown_subscription"
)

func (w *WebhookIngestor) route(ctx context.Context, evt paystack.Event) (Outcome, error) {
	s := w.svc
	switch e := evt.(type) {
	case paystack.ChargeSuccess:
		return s.applyCharge(ctx, e.Transaction)

	case paystack.SubscriptionCreated:
		userID, err := s.resolveSubscription(ctx, e.Subscription.SubscriptionCode, e.Subscription.Customer.CustomerCode)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.attachSubscriptionCode(ctx, userID, e.Subscription.SubscriptionCode, e.Subscription.EmailToken); err != nil {
			return Outcome{}, err
		}
		return Outcome{Applied: true}, nil

	case paystack.SubscriptionDisabled:
		userID, err := s.resolveByCode(ctx, e.Subscription.SubscriptionCode)
		if err != nil {
			return Outcome{}, err
		}
		return s.fireAtomic(ctx, userID, EventCanceled, &change{now: s.now()})

	case paystack.InvoiceUpdated:
		inv := e.Invoice
		if !inv.Paid && inv.Status != paystack.StatusSuccess {
			return Outcome{Reason: reasonUnpaid}, nil
		}
		reference := invoiceReference(inv)
		if reference == "" {
			return Outcome{Reason: reasonNoReference}, nil
		}
		userID, ok, err := s.invoiceOwner(ctx, inv)
		if err != nil || !ok {
			return Outcome{Reason: reasonUnknownSubscription}, err
		}
		return s.applyRenewal(ctx, userID, reference)

	case paystack.InvoicePaymentFailed:
		userID, ok, err := s.invoiceOwner(ctx, e.Invoice)
		if err != nil || !ok {
			return Outcome{Reason: reasonUnknownSubscription}, err
		}
		return s.fireAtomic(ctx, userID, EventPaymentFailed, &change{now: s.now()})

	case paystack.SubscriptionNotRenewing, paystack.InvoiceCreated:
		return Outcome{Reason: reasonNotHandled}, nil

	default:
		return Outcome{Reason: reasonUnknownEvent}, nil
	}
}

// resolveByCode finds the user by subscription code only. Disabling must not
// touch a row the code does not belong to.
func (s *Service) resolveByCode(ctx context.Context, code string) (uuid.UUID, error) {
	if code == "" {
		return uuid.Nil, ErrUserNotResolved
	}
	sub, err := s.store.FindSubscriptionByCode(ctx, code)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return uuid.Nil, ErrUserNotResolved
	}
	if err != nil {
		return uuid.Nil, err
	}
	return sub.UserID, nil
}

// invoiceOwner resolves the user an invoice is for. An invoice that names a
// subscription code only ever touches the row holding that code; ok is false
// when no row does. Invoices without a code fall back to the customer.
func (s *Service) invoiceOwner(ctx context.Context, inv paystack.Invoice) (userID uuid.UUID, ok bool, err error) {
	code := inv.Subscription.SubscriptionCode
	if code == "" {
		userID, err = s.resolveCustomer(ctx, inv.Customer.CustomerCode)
		return userID, err == nil, err
	}
	userID, err = s.resolveByCode(ctx, code)
	if errors.Is(err, ErrUserNotResolved) {
		s.logger.WarnContext(ctx, "invoice for unknown subscription ignored", logger.SubscriptionCode(code))
		return uuid.Nil, false, nil
	}
	return userID, err == nil, err
}

// invoiceReference is the payment reference of a paid invoice. It matches the
// reference of the charge.success for the same renewal so the two collapse.
func invoiceReference(inv paystack.Invoice) string {
	if inv.Transaction.Reference != "" {
		return inv.Transaction.Reference
	}
	if inv.InvoiceCode != "" {
		return "invoice-" + inv.InvoiceCode
	}
	return ""
}
