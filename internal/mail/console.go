package mail

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ConsoleBackend logs messages instead of sending them.
type ConsoleBackend struct {
	logger *zap.Logger
}

// NewConsoleBackend returns a backend writing to logger.
func NewConsoleBackend(logger *zap.Logger) *ConsoleBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleBackend{logger: logger}
}

// Send logs every message.
func (b *ConsoleBackend) Send(_ context.Context, msgs ...Message) error {
	for _, msg := range msgs {
		b.logger.Info("email",
			zap.String("from", msg.From),
			zap.String("to", strings.Join(msg.To, ", ")),
			zap.String("subject", msg.Subject),
			zap.String("body", msg.Body),
		)
	}
	return nil
}

// LocmemBackend keeps sent messages in memory for tests.
type LocmemBackend struct {
	mu     sync.Mutex
	outbox []Message
}

// NewLocmemBackend returns an empty outbox.
func NewLocmemBackend() *LocmemBackend {
	return &LocmemBackend{}
}

// Send appends msgs to the outbox.
func (b *LocmemBackend) Send(_ context.Context, msgs ...Message) error {
	b.mu.Lock()
	b.outbox = append(b.outbox, msgs...)
	b.mu.Unlock()
	return nil
}

// Outbox returns a copy of every message sent so far.
func (b *LocmemBackend) Outbox() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.outbox...)
}
