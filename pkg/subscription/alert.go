package subscription

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/codeabuu/pdfworld/pkg/email"
	"github.com/codeabuu/pdfworld/pkg/email/templates"
)

// Alert is a billing problem that needs an operator.
type Alert struct {
	Kind      string
	UserID    uuid.UUID
	Reference string
	Amount    string
	Reason    string
	At        time.Time
}

// Alert kinds.
const (
	AlertRefundFailed = "refund_failed"
	AlertChargeError  = "charge_error"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Alert) error { return nil }

// EmailNotifier mails alerts to an operator inbox.
type EmailNotifier struct {
	sender email.EmailSender
	to     string
}

// NewEmailNotifier creates a notifier that mails alerts to to.
func NewEmailNotifier(sender email.EmailSender, to string) *EmailNotifier {
	if sender == nil {
		panic("subscription: EmailSender is required")
	}
	return &EmailNotifier{sender: sender, to: to}
}

func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := templates.Render(ctx, AlertEmail(alert))
	if err != nil {
		return fmt.Errorf("render alert: %w", err)
	}
	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   n.to,
		Subject:  fmt.Sprintf("[billing] %s for %s", alert.Kind, alert.Reference),
		BodyHTML: body,
		Tag:      "billing-" + alert.Kind,
	})
}

// AlertEmail renders the HTML body of an operator alert.
func AlertEmail(alert Alert) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		rows := []struct{ label, value string }{
			{"Kind", alert.Kind},
			{"User", alert.UserID.String()},
			{"Reference", alert.Reference},
			{"Amount", alert.Amount},
			{"Reason", alert.Reason},
			{"At", alert.At.UTC().Format(time.RFC3339)},
		}
		if _, err := io.WriteString(w, "<h2>Billing alert</h2><table>"); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "<tr><th>%s</th><td>%s</td></tr>",
				templ.EscapeString(r.label), templ.EscapeString(r.value)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</table>")
		return err
	})
}
