package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

const maxInputLength = 10000

var (
	dotRegex          = regexp.MustCompile(`\.+`)
	ansiSequenceRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
)

// NormalizeEmail lowercases and trims an address and collapses repeated
// dots in the local part. Input that is not a single-@ address is only
// trimmed and lowercased.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return email
	}

	local = strings.Trim(dotRegex.ReplaceAllString(local, "."), ".")
	return local + "@" + domain
}

// MaskEmail keeps the first character of the local part and the full domain,
// for log lines that need to identify a customer without exposing the address.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

// RemoveNullBytes removes NUL characters.
func RemoveNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// RemoveControlSequences removes ANSI escape sequences and control characters
// other than newline, carriage return and tab.
func RemoveControlSequences(s string) string {
	s = ansiSequenceRegex.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// LimitLength truncates s to at most maxLength runes.
func LimitLength(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength])
}

// SanitizeUserInput is the default pipeline for free-form request strings.
var SanitizeUserInput = Compose(
	RemoveNullBytes,
	RemoveControlSequences,
	strings.TrimSpace,
	func(s string) string { return LimitLength(s, maxInputLength) },
)
