package mail

import (
	"context"
	"net/mail"
	"sync"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. It keeps the sent
// messages in memory so development tooling can inspect them.
type ConsoleSender struct {
	from       string
	subjPrefix string
	logger     *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleSender constructs a ConsoleSender.
func NewConsoleSender(from, subjPrefix string, logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{from: from, subjPrefix: subjPrefix, logger: logger}
}

// Send validates the recipient address and logs the message.
func (s *ConsoleSender) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return &SendResult{Success: false, Message: "invalid recipient address"}, nil
	}

	s.logger.Info("email",
		zap.String("from", s.from),
		zap.String("to", msg.To),
		zap.String("subject", s.subjPrefix+msg.Subject),
		zap.String("text", msg.Text),
	)

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return &SendResult{Success: true, Message: "logged"}, nil
}

// Sent returns a copy of the messages logged so far.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
