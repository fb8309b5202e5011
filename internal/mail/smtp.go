package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/planetterp/planetterp/internal/config"
)

// SMTPBackend sends through the configured SMTP relay, one connection per call.
type SMTPBackend struct {
	cfg config.Email
}

// NewSMTPBackend returns a backend for cfg.
func NewSMTPBackend(cfg config.Email) *SMTPBackend {
	return &SMTPBackend{cfg: cfg}
}

// Send dials the relay and delivers msgs.
func (b *SMTPBackend) Send(ctx context.Context, msgs ...Message) error {
	client, err := gomail.NewClient(b.cfg.Host, b.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	out := make([]*gomail.Msg, 0, len(msgs))
	for _, msg := range msgs {
		m, err := buildMsg(msg)
		if err != nil {
			return err
		}
		out = append(out, m)
	}
	return client.DialAndSendWithContext(ctx, out...)
}

func (b *SMTPBackend) clientOptions() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(b.cfg.Port)}
	if b.cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(b.cfg.Timeout))
	}
	switch {
	case b.cfg.UseSSL:
		opts = append(opts, gomail.WithSSL())
	case b.cfg.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if b.cfg.HostUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(b.cfg.HostUser),
			gomail.WithPassword(b.cfg.HostPassword),
		)
	}
	return opts
}

func buildMsg(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from address %q: %w", msg.From, err)
	}
	if len(msg.To) > 0 {
		if err := m.To(msg.To...); err != nil {
			return nil, fmt.Errorf("to addresses: %w", err)
		}
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("cc addresses: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("bcc addresses: %w", err)
		}
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("reply-to address: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLBody)
	}
	return m, nil
}
