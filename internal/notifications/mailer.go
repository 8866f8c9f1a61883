package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/invoicehub/internal/config"
	"github.com/wneessen/go-mail"
)

// Message is a single outbound email with an HTML body and a plain-text
// alternative.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail through an authenticated SMTP relay, sending from
// the account it logs in as.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	logger   *slog.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.User,
		password: cfg.Password,
		logger:   logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out := mail.NewMsg()

	if err := out.From(m.username); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	out.Subject(msg.Subject)

	if msg.Text != "" {
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	} else {
		out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	}

	client, err := mail.NewClient(m.host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.DebugContext(ctx, "smtp: email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithUsername(m.username),
		mail.WithPassword(m.password),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
	}

	switch m.port {
	case 465:
		opts = append(opts, mail.WithSSL())
	case 587:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	return opts
}
