package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeabuu/pdfworld/pkg/logger"
	"github.com/codeabuu/pdfworld/pkg/paystack"
)

// Sweep outcomes.
const (
	SweepConverted = "converted"
	SweepPastDue   = "past_due"
	SweepCanceled  = "canceled"
	SweepSkipped   = "skipped"
	SweepError     = "error"
)

// SweepInterval is how often the sweeper is meant to run.
const SweepInterval = 24 * time.Hour

// SweepReport summarises one sweep run.
type SweepReport struct {
	Converted int
	PastDue   int
	Canceled  int
	Skipped   int
	Errors    int
}

// Total is the number of trials the run looked at.
func (r SweepReport) Total() int {
	return r.Converted + r.PastDue + r.Canceled + r.Skipped + r.Errors
}

func (r *SweepReport) add(outcome string) {
	switch outcome {
	case SweepConverted:
		r.Converted++
	case SweepPastDue:
		r.PastDue++
	case SweepCanceled:
		r.Canceled++
	case SweepSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// ExpiredTrialSweeper converts trials whose window has closed: the default
// card is charged for the monthly plan, a declined charge leaves the row
// past due and a user without a card is canceled. Running it twice for the
// same trials charges nobody twice.
type ExpiredTrialSweeper struct {
	svc *Service
}

// NewExpiredTrialSweeper creates a sweeper over svc.
func NewExpiredTrialSweeper(svc *Service) *ExpiredTrialSweeper {
	if svc == nil {
		panic("subscription: Service is required")
	}
	return &ExpiredTrialSweeper{svc: svc}
}

// Run sweeps every trial due at the time of the call. A failure on one trial
// does not stop the others; such trials stay trialing and are retried by the
// next run.
func (w *ExpiredTrialSweeper) Run(ctx context.Context) (SweepReport, error) {
	s := w.svc
	started := s.now()
	cutoff := started
	log := s.logger.With(logger.Job("trial_sweeper"))

	var (
		report SweepReport
		mu     sync.Mutex
		after  DueCursor
	)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// Failed rows stay due, so paging is by position rather than by what is left
		batch, err := s.store.ListDueTrials(ctx, cutoff, after, s.cfg.SweepBatchSize)
		if err != nil {
			return report, fmt.Errorf("list due trials: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		after = CursorAfter(batch[len(batch)-1])

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.SweepConcurrency)
		for _, sub := range batch {
			g.Go(func() error {
				outcome := w.sweepOne(gctx, sub)
				s.metrics.sweep(outcome)
				mu.Lock()
				report.add(outcome)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if len(batch) < s.cfg.SweepBatchSize {
			break
		}
	}

	log.InfoContext(ctx, "trial sweep finished",
		slog.Int("converted", report.Converted),
		slog.Int("past_due", report.PastDue),
		slog.Int("canceled", report.Canceled),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", report.Errors),
		logger.Duration(s.now().Sub(started)),
	)
	return report, nil
}

// conversionReference is stable for a given trial so a retried charge is
// recognised by the gateway and by the payment ledger.
func conversionReference(sub Subscription) string {
	return fmt.Sprintf("sweep-%s-%d", sub.ID, sub.TrialEnd.Unix())
}

func (w *ExpiredTrialSweeper) sweepOne(ctx context.Context, sub Subscription) string {
	s := w.svc
	log := s.logger.With(logger.Job("trial_sweeper"), logger.UserID(sub.UserID))

	current, err := s.store.GetSubscription(ctx, sub.UserID)
	if err != nil {
		log.ErrorContext(ctx, "failed to reload subscription", logger.Error(err))
		return SweepError
	}
	if current.ID != sub.ID || !current.TrialElapsed(s.now()) {
		return SweepSkipped
	}

	methods, err := s.store.ListPaymentMethods(ctx, sub.UserID)
	if err != nil {
		log.ErrorContext(ctx, "failed to load payment methods", logger.Error(err))
		return SweepError
	}
	pm, ok := defaultMethod(methods)
	if !ok {
		out, err := s.fireAtomic(ctx, sub.UserID, EventTrialLapsed, &change{now: s.now(), requireFrom: StatusTrialing})
		return w.result(ctx, log, out, err, SweepCanceled)
	}

	plan, err := s.catalog.Plan(PlanMonthly)
	if err != nil {
		log.ErrorContext(ctx, "monthly plan missing from catalog", logger.Error(err))
		return SweepError
	}
	reference := conversionReference(sub)

	// The charge happens outside any unit of work; the persisted state is re-read afterwards
	_, err = s.gateway.ChargeAuthorization(ctx, paystack.ChargeRequest{
		Email:             pm.Email,
		Amount:            ToMinor(plan.Amount),
		Currency:          s.catalog.Currency(),
		AuthorizationCode: pm.AuthorizationCode,
		Reference:         reference,
		Metadata: paystack.Metadata{
			UserID:   sub.UserID.String(),
			PlanType: string(PlanMonthly),
			Type:     paystack.TypeSubscriptionPayment,
		},
	})
	if err != nil && !errors.Is(err, paystack.ErrTransactionFailed) {
		// A charge that reached the gateway before a crash comes back as a
		// duplicate reference; its settled state decides
		if verified, verr := s.gateway.VerifyTransaction(ctx, reference); verr == nil {
			err = nil
			if !verified.Succeeded() {
				err = paystack.ErrTransactionFailed
			}
		}
	}

	switch {
	case err == nil:
		pmID := pm.ID
		out, ferr := s.fireAtomic(ctx, sub.UserID, EventPaymentSucceeded, &change{
			now:             s.now(),
			plan:            plan,
			reference:       reference,
			paymentMethodID: &pmID,
		})
		if ferr == nil && out.Applied {
			s.enrollRecurring(ctx, sub.UserID, plan, &pm)
		}
		return w.result(ctx, log, out, ferr, SweepConverted)

	case paystack.IsDeclined(err):
		log.InfoContext(ctx, "trial conversion declined",
			logger.Reference(reference),
			logger.Error(err),
		)
		out, ferr := s.fireAtomic(ctx, sub.UserID, EventPaymentFailed, &change{now: s.now(), requireFrom: StatusTrialing})
		return w.result(ctx, log, out, ferr, SweepPastDue)

	default:
		log.ErrorContext(ctx, "trial conversion charge failed",
			logger.Reference(reference),
			logger.Error(err),
		)
		s.alert(ctx, Alert{
			Kind:      AlertChargeError,
			UserID:    sub.UserID,
			Reference: reference,
			Amount:    FormatAmount(plan.Amount, s.catalog.Currency()),
			Reason:    err.Error(),
			At:        s.now(),
		})
		return SweepError
	}
}

func (w *ExpiredTrialSweeper) result(ctx context.Context, log *slog.Logger, out Outcome, err error, want string) string {
	if err != nil {
		log.ErrorContext(ctx, "failed to apply trial sweep result", logger.Error(err))
		return SweepError
	}
	if !out.Applied {
		log.DebugContext(ctx, "trial changed before sweep applied", slog.String("reason", out.Reason))
		return SweepSkipped
	}
	return want
}
