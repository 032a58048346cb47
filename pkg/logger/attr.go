package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// EventType records a gateway event name under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Reference records a gateway transaction reference under the key "reference".
func Reference(ref string) slog.Attr {
	if ref == "" {
		return slog.Attr{}
	}
	return slog.String("reference", ref)
}

// SubscriptionCode records a gateway subscription code under the key "subscription_code".
func SubscriptionCode(code string) slog.Attr {
	if code == "" {
		return slog.Attr{}
	}
	return slog.String("subscription_code", code)
}

// Plan records a plan type under the key "plan".
func Plan[T ~string](plan T) slog.Attr {
	return slog.String("plan", string(plan))
}

// Transition records a state change as "from" and "to" grouped under "transition".
func Transition[T ~string](from, to T) slog.Attr {
	return Group("transition", slog.String("from", string(from)), slog.String("to", string(to)))
}

// PaymentMethodID records a saved card identifier under the key "payment_method_id".
func PaymentMethodID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("payment_method_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Job names a scheduled or background job under the key "job".
func Job(name string) slog.Attr {
	return slog.String("job", name)
}

// SecurityEvent flags a record for security review under the key "security_event".
func SecurityEvent(name string) slog.Attr {
	return slog.String("security_event", name)
}
