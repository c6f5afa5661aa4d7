package notify

import (
	"context"
	"log/slog"
)

// DevMailer logs emails instead of sending them (safe for development).
type DevMailer struct {
	Logger *slog.Logger
}

func (m *DevMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("email_sent",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
