package email

// Config selects and configures the outbound mail transport.
// With a server token mail goes through Postmark; otherwise, when DevDir is
// set, messages are written to disk; with neither, New returns ErrDisabled.
type Config struct {
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN"`
	SenderEmail         string `env:"SENDER_EMAIL" envDefault:"billing@localhost.localdomain"`
	SupportEmail        string `env:"SUPPORT_EMAIL"`
	DevDir              string `env:"EMAIL_DEV_DIR"`
}

// New returns the sender described by cfg.
func New(cfg Config) (EmailSender, error) {
	switch {
	case cfg.PostmarkServerToken != "":
		return NewPostmarkClient(cfg)
	case cfg.DevDir != "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, ErrDisabled
	}
}
