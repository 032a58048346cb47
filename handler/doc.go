// Package handler provides type-safe HTTP request handling for JSON APIs.
//
// Handlers are generic functions that receive a bound request struct and
// return a Response. Wrap turns them into http.HandlerFunc values, running
// binders first and routing any binding or rendering failure to an
// ErrorHandler:
//
//	type StartPaidRequest struct {
//		Email string `json:"email"`
//		Plan  string `json:"plan"`
//	}
//
//	func startPaid(ctx handler.Context, req StartPaidRequest) handler.Response {
//		checkout, err := svc.StartPaidSubscription(ctx, userID(ctx), req.Email, req.Plan)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(checkout, handler.WithJSONStatus(http.StatusCreated))
//	}
//
//	r.Post("/subscription", handler.Wrap(startPaid,
//		handler.WithBinder[handler.Context, StartPaidRequest](binder.JSON()),
//	))
//
// # Responses
//
// JSON and JSONError write the envelope
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// HTTPError carries a status code and a machine readable key; ValidationError
// renders as 422 with per-field details. Any other error is rendered as a
// generic 500 so internal messages never reach clients. Empty writes 204 with
// no body.
//
// # Errors
//
// NewErrorHandler builds the JSON error handler used in production. It accepts
// an ErrorClassifier to translate domain errors, maps binder failures to 400 or
// 415, and logs every error with the request id at warn (4xx) or error (5xx)
// level. Handlers return Fail(err) to let that handler render a failure.
//
// # Context
//
// Context embeds the request context and exposes the request and response
// writer. ContextKey, ContextValue and ContextValueOK give typed access to
// values placed on the context by middleware.
package handler
