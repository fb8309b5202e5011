package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap/zaptest"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/metrics"
)

func testEmail() config.Email {
	cfg := config.Default("/srv").Email
	cfg.Backend = BackendLocmem
	cfg.DefaultFrom = "noreply@planetterp.com"
	return cfg
}

func TestNewBackend(t *testing.T) {
	logger := zaptest.NewLogger(t)
	for _, name := range Backends() {
		cfg := testEmail()
		cfg.Backend = name
		if _, err := NewBackend(cfg, logger); err != nil {
			t.Fatalf("NewBackend(%q) returned error: %v", name, err)
		}
	}

	cfg := testEmail()
	cfg.Backend = "carrier-pigeon"
	if _, err := NewBackend(cfg, logger); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestMailerSendFillsDefaultFrom(t *testing.T) {
	outbox := NewLocmemBackend()
	m, err := New(testEmail(), nil, zaptest.NewLogger(t), WithBackend(BackendLocmem, outbox), WithMetrics(metrics.New()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := m.Send(context.Background(), Message{To: []string{"a@umd.edu"}, Subject: "hi", Body: "body"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	sent := outbox.Outbox()
	if len(sent) != 1 || sent[0].From != "noreply@planetterp.com" {
		t.Fatalf("unexpected outbox %+v", sent)
	}

	if err := m.Send(context.Background(), Message{Subject: "nobody"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestMailAdmins(t *testing.T) {
	outbox := NewLocmemBackend()
	admins := []config.Admin{{Name: "Ops", Email: "ops@planetterp.com"}, {Email: "dev@planetterp.com"}}
	m, err := New(testEmail(), admins, zaptest.NewLogger(t), WithBackend(BackendLocmem, outbox))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := m.MailAdmins(context.Background(), "Server error", "trace"); err != nil {
		t.Fatalf("MailAdmins returned error: %v", err)
	}
	sent := outbox.Outbox()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	if sent[0].Subject != "[PlanetTerp] Server error" {
		t.Fatalf("unexpected subject %q", sent[0].Subject)
	}
	want := []string{`"Ops" <ops@planetterp.com>`, "dev@planetterp.com"}
	if strings.Join(sent[0].To, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected recipients %v", sent[0].To)
	}
}

func TestMailAdminsWithoutAdminsIsNoop(t *testing.T) {
	outbox := NewLocmemBackend()
	m, err := New(testEmail(), nil, nil, WithBackend(BackendLocmem, outbox))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := m.MailAdmins(context.Background(), "x", "y"); err != nil {
		t.Fatalf("MailAdmins returned error: %v", err)
	}
	if len(outbox.Outbox()) != 0 {
		t.Fatalf("expected empty outbox")
	}
}

type failingBackend struct{}

func (failingBackend) Send(context.Context, ...Message) error { return errors.New("relay down") }

func TestMailerWrapsBackendErrors(t *testing.T) {
	m, err := New(testEmail(), nil, nil, WithBackend("smtp", failingBackend{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	err = m.Send(context.Background(), Message{To: []string{"a@umd.edu"}})
	if err == nil || !strings.Contains(err.Error(), "relay down") {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestBuildMsg(t *testing.T) {
	msg, err := buildMsg(Message{
		From:     "noreply@planetterp.com",
		To:       []string{"student@umd.edu"},
		Bcc:      []string{"audit@planetterp.com"},
		Subject:  "Welcome",
		Body:     "plain body",
		HTMLBody: "<p>html body</p>",
	})
	if err != nil {
		t.Fatalf("buildMsg returned error: %v", err)
	}
	if got := msg.GetGenHeader(gomail.HeaderSubject); len(got) != 1 || got[0] != "Welcome" {
		t.Fatalf("unexpected subject header %v", got)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients returned error: %v", err)
	}
	if len(rcpts) != 2 {
		t.Fatalf("expected to and bcc recipients, got %v", rcpts)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo returned error: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"plain body", "html body", "multipart/alternative"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected %q in rendered message", want)
		}
	}
}

func TestBuildMsgRejectsBadAddress(t *testing.T) {
	if _, err := buildMsg(Message{From: "not an address", To: []string{"a@umd.edu"}}); err == nil {
		t.Fatalf("expected invalid from address to fail")
	}
}

func TestSMTPClientOptions(t *testing.T) {
	cfg := config.Default("/srv").Email
	cfg.HostUser = "bot@planetterp.com"
	cfg.HostPassword = "app-password"
	if _, err := gomail.NewClient(cfg.Host, NewSMTPBackend(cfg).clientOptions()...); err != nil {
		t.Fatalf("client options rejected: %v", err)
	}

	cfg.Port = 0
	if _, err := gomail.NewClient(cfg.Host, NewSMTPBackend(cfg).clientOptions()...); err == nil {
		t.Fatalf("expected invalid port to be rejected")
	}
}
