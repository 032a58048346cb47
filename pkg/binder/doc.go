// Package binder decodes HTTP requests into typed request structs.
//
// Two binders are provided:
//
//   - JSON decodes an application/json body strictly (unknown fields and
//     trailing data are rejected, bodies are capped at DefaultMaxJSONSize) and
//     sanitizes every decoded string.
//   - Path reads router path parameters through an extractor such as
//     chi.URLParam, using `path:"name"` struct tags.
//
// Binders return errors wrapping the package sentinels (ErrFailedToParseJSON,
// ErrUnsupportedMediaType, ErrMissingContentType, ErrInvalidPath) so the HTTP
// error handler can map them to 400/415 responses. A binder that does not apply
// to a request returns ErrBinderNotApplicable and is skipped.
//
// Usage:
//
//	type RemoveCardRequest struct {
//		ID uuid.UUID `path:"id" json:"-"`
//	}
//
//	r.Delete("/cards/{id}", handler.Wrap(removeCard,
//		handler.WithBinders[handler.Context, RemoveCardRequest](binder.Path(chi.URLParam)),
//	))
package binder
