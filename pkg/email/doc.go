// Package email sends operator notifications.
//
// EmailSender abstracts the transport. New picks Postmark when a server token
// is configured, falls back to DevSender (HTML and JSON files on disk) when
// EMAIL_DEV_DIR is set, and returns ErrDisabled otherwise:
//
//	var cfg email.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	sender, err := email.New(cfg)
//	if errors.Is(err, email.ErrDisabled) {
//		// alerts are only logged
//	}
//
// Every implementation runs SendEmailParams.Validate before delivery.
// Bodies are typically produced with templates.Render from a templ component.
package email
