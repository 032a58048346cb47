package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required", Key: "validation.required"},
	}
}

// MaxLenString validates the byte length of a string.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters long", max),
			Key:     "validation.max_length",
		},
	}
}

// ValidEmail validates that a string is a bare email address with a dotted domain.
// Display names ("Ann <ann@example.com>") are rejected.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}
			local, domain, ok := strings.Cut(value, "@")
			if !ok || local == "" {
				return false
			}
			if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
				return false
			}
			parts := strings.Split(domain, ".")
			return len(parts) > 1 && !slices.Contains(parts, "")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address", Key: "validation.email"},
	}
}

// InList validates that value is one of allowed.
func InList[T ~string](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", joinStrings(allowed)),
			Key:     "validation.in_list",
		},
	}
}

// Matches validates a non-empty value against a precompiled pattern.
func Matches(field, value string, re *regexp.Regexp, description string) Rule {
	return Rule{
		Check: func() bool { return value != "" && re.MatchString(value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be %s", description),
			Key:     "validation.pattern",
		},
	}
}

// RequiredUUID validates that an id is set.
func RequiredUUID(field string, value uuid.UUID) Rule {
	return Rule{
		Check: func() bool { return value != uuid.Nil },
		Error: ValidationError{Field: field, Message: "must be a valid id", Key: "validation.uuid"},
	}
}

func joinStrings[T ~string](values []T) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return strings.Join(out, ", ")
}
