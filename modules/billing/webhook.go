package billing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/codeabuu/pdfworld/handler"
	"github.com/codeabuu/pdfworld/pkg/webhook"
)

var errPayloadTooLarge = handler.NewHTTPError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE")

type webhookRequest struct {
	Body      []byte
	Signature string
}

// bindWebhook keeps the body byte-exact; the signature is computed over it.
func (m *module) bindWebhook(r *http.Request, v any) error {
	req, ok := v.(*webhookRequest)
	if !ok {
		return fmt.Errorf("billing: unexpected webhook target %T", v)
	}

	body, err := webhook.ReadBody(r, m.maxWebhook)
	switch {
	case errors.Is(err, webhook.ErrPayloadTooLarge):
		return errPayloadTooLarge
	case err != nil:
		return handler.ErrBadRequest.WithMessage("could not read request body")
	}

	req.Body = body
	req.Signature = r.Header.Get(webhook.SignatureHeader)
	return nil
}

// webhook answers 401 for bad signatures and 400 for malformed payloads so the
// gateway does not retry them, 500 for processing failures so it does, and
// 200 for everything that was handled, ignored or already seen.
func (m *module) webhook(ctx handler.Context, req webhookRequest) handler.Response {
	res, err := m.ingestor.Ingest(ctx, req.Body, req.Signature)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(webhookResponse{
		Event:   res.Event,
		Outcome: res.Outcome,
		Reason:  res.Reason,
	})
}
