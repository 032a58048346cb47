package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codeabuu/pdfworld/handler"
	"github.com/codeabuu/pdfworld/pkg/binder"
	"github.com/codeabuu/pdfworld/pkg/subscription"
)

// RouterOptions configures the billing module.
type RouterOptions struct {
	Service  *subscription.Service
	Ingestor *subscription.WebhookIngestor
	Logger   *slog.Logger

	// MaxWebhookBytes defaults to webhook.DefaultMaxBodySize.
	MaxWebhookBytes int64
}

type module struct {
	svc          *subscription.Service
	ingestor     *subscription.WebhookIngestor
	log          *slog.Logger
	maxWebhook   int64
	errorHandler handler.ErrorHandler[handler.Context]
}

// Router creates the billing router.
//
// Client endpoints sit behind RequireUser and read the caller from the
// X-User-ID header. The gateway webhook is authenticated by its signature.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//	r.Mount("/", billing.Router(billing.RouterOptions{
//		Service:  svc,
//		Ingestor: subscription.NewWebhookIngestor(svc, cfg.SecretKey),
//		Logger:   log,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("billing: Service is required")
	}
	if opts.Ingestor == nil {
		panic("billing: Ingestor is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &module{
		svc:        opts.Service,
		ingestor:   opts.Ingestor,
		log:        log.With(slog.String("module", "billing")),
		maxWebhook: opts.MaxWebhookBytes,
	}
	m.errorHandler = handler.NewErrorHandler(m.log, handler.ErrorHandlerConfig{Classify: Classify})

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/", wrap(m, m.status))
			r.Post("/", wrap(m, m.startPaid, binder.JSON()))
			r.Get("/trial-eligibility", wrap(m, m.trialEligibility))
			r.Post("/trial", wrap(m, m.startTrial, binder.JSON()))
			r.Post("/cancel", wrap(m, m.cancel))
			r.Post("/verify", wrap(m, m.verifyPayment, binder.JSON()))
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", wrap(m, m.listCards))
			r.Post("/", wrap(m, m.addCard, binder.JSON()))
			r.Post("/verify", wrap(m, m.verifyCard, binder.JSON()))
			r.Post("/{id}/default", wrap(m, m.setDefaultCard, binder.Path(chi.URLParam)))
			r.Delete("/{id}", wrap(m, m.removeCard, binder.Path(chi.URLParam)))
		})
	})

	r.Post("/webhooks/paystack", wrap(m, m.webhook, m.bindWebhook))

	return r
}

func wrap[R any](m *module, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](m.errorHandler),
	)
}
