// Package validator provides declarative validation rules for request input.
//
// Each rule constructor returns a Rule that pairs a Check function with the
// ValidationError to report when the check fails. Apply evaluates a set of
// rules and returns ValidationErrors (an error) listing every failure, or nil:
//
//	err := validator.Apply(
//		validator.RequiredString("email", req.Email),
//		validator.ValidEmail("email", req.Email),
//		validator.InList("plan", req.Plan, []subscription.PlanType{"monthly", "yearly"}),
//	)
//	if errs := validator.ExtractValidationErrors(err); errs != nil {
//		// errs.Fields(), errs.Get("email")
//	}
//
// Rules are stateless and safe for concurrent use.
package validator
