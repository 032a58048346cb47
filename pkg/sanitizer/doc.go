// Package sanitizer normalises untrusted request strings before they reach
// validation and storage.
//
// Transforms are plain func(string) string values composed with Apply and
// Compose. SanitizeUserInput is the pipeline the JSON binder runs over every
// decoded string; NormalizeEmail canonicalises customer addresses before they
// are sent to the payment gateway, and MaskEmail is used in log lines.
package sanitizer
