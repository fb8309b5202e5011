// Package mail delivers email through the backend named in the settings.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/metrics"
)

// Backend names accepted in Email.Backend.
const (
	BackendSMTP    = "smtp"
	BackendConsole = "console"
	BackendLocmem  = "locmem"
	BackendDummy   = "dummy"
)

var (
	// ErrUnknownBackend is returned for backend names that are not built in.
	ErrUnknownBackend = errors.New("unknown email backend")
	// ErrNoRecipients is returned for messages without any recipient.
	ErrNoRecipients = errors.New("message has no recipients")
)

// Message is one outgoing email.
type Message struct {
	From     string
	To       []string
	Cc       []string
	Bcc      []string
	ReplyTo  string
	Subject  string
	Body     string
	HTMLBody string
}

func (m Message) recipients() int {
	return len(m.To) + len(m.Cc) + len(m.Bcc)
}

// Backend delivers messages.
type Backend interface {
	Send(ctx context.Context, msgs ...Message) error
}

// Backends lists the supported backend names.
func Backends() []string {
	out := []string{BackendSMTP, BackendConsole, BackendLocmem, BackendDummy}
	sort.Strings(out)
	return out
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg config.Email, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendSMTP:
		return NewSMTPBackend(cfg), nil
	case BackendConsole:
		return NewConsoleBackend(logger), nil
	case BackendLocmem:
		return NewLocmemBackend(), nil
	case BackendDummy:
		return dummyBackend{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}

// Mailer fills in defaults, counts deliveries and reports errors to admins.
type Mailer struct {
	backend     Backend
	backendName string
	from        string
	prefix      string
	admins      []config.Admin
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithBackend replaces the configured backend.
func WithBackend(name string, b Backend) Option {
	return func(m *Mailer) {
		m.backend = b
		m.backendName = name
	}
}

// WithMetrics counts delivery attempts.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Mailer) {
		m.metrics = mt
	}
}

// New builds a Mailer from the email settings and the admin list.
func New(cfg config.Email, admins []config.Admin, logger *zap.Logger, opts ...Option) (*Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{
		backendName: cfg.Backend,
		from:        cfg.DefaultFrom,
		prefix:      cfg.SubjectPrefix,
		admins:      append([]config.Admin(nil), admins...),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		b, err := NewBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		m.backend = b
	}
	return m, nil
}

// Backend returns the delivery backend.
func (m *Mailer) Backend() Backend {
	return m.backend
}

// Send delivers msgs, using the default sender where From is empty.
func (m *Mailer) Send(ctx context.Context, msgs ...Message) error {
	for i := range msgs {
		if msgs[i].recipients() == 0 {
			return ErrNoRecipients
		}
		if msgs[i].From == "" {
			msgs[i].From = m.from
		}
	}
	err := m.backend.Send(ctx, msgs...)
	m.metrics.RecordMail(m.backendName, err)
	if err != nil {
		return fmt.Errorf("send mail via %s: %w", m.backendName, err)
	}
	m.logger.Debug("mail sent", zap.String("backend", m.backendName), zap.Int("messages", len(msgs)))
	return nil
}

// MailAdmins sends subject and body to every admin. It is a no-op without admins.
func (m *Mailer) MailAdmins(ctx context.Context, subject, body string) error {
	if len(m.admins) == 0 {
		return nil
	}
	to := make([]string, 0, len(m.admins))
	for _, admin := range m.admins {
		to = append(to, formatAddress(admin.Name, admin.Email))
	}
	return m.Send(ctx, Message{
		To:      to,
		Subject: m.prefix + subject,
		Body:    body,
	})
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%q <%s>", name, email)
}

type dummyBackend struct{}

func (dummyBackend) Send(context.Context, ...Message) error { return nil }
