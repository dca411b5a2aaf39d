// Package mail defines the outbound mail contract and its providers.
package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/pkg/config"
)

// Message is a single rendered email addressed to one recipient.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// SendResult reports the provider outcome for one message.
type SendResult struct {
	Success bool
	Message string
}

// Sender delivers messages. Implementations must not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// NewSender builds the provider selected in configuration.
func NewSender(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", config.MailProviderConsole:
		return NewConsoleSender(cfg.FromEmail, cfg.SubjectPrefix, logger), nil
	case config.MailProviderSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid api key missing")
		}
		return NewSendgridSender(cfg.SendgridAPIKey, cfg.FromName, cfg.FromEmail, cfg.SubjectPrefix), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
