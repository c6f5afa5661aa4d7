package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier formats and sends the auth core's emails through an EmailSender.
// Every method swallows send errors after logging them; a broken mail
// pipeline must never fail a login, reset, or verification commit.
type Notifier struct {
	sender EmailSender
	appURL string
	log    *slog.Logger
}

// NewNotifier creates a Notifier. appURL is the base for links embedded in
// emails.
func NewNotifier(sender EmailSender, appURL string, log *slog.Logger) *Notifier {
	return &Notifier{sender: sender, appURL: appURL, log: log}
}

func (n *Notifier) send(ctx context.Context, kind string, msg Message) {
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Error("email_send_failed", "kind", kind, "to", msg.To, "error", err)
	}
}

// SendVerification emails the raw verification token. The token is never
// persisted in plaintext; this is its only exit from memory.
func (n *Notifier) SendVerification(ctx context.Context, to, token string) {
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", n.appURL, token)
	n.send(ctx, "verification", Message{
		To:      to,
		Subject: "Verify your email address",
		HTML:    fmt.Sprintf(`<p>Welcome! Confirm your email by clicking <a href="%s">this link</a>. The link expires in 24 hours.</p>`, link),
		Text:    fmt.Sprintf("Welcome! Confirm your email: %s (expires in 24 hours)", link),
	})
}

// SendPasswordReset emails the raw reset token.
func (n *Notifier) SendPasswordReset(ctx context.Context, to, token string) {
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", n.appURL, token)
	n.send(ctx, "password_reset", Message{
		To:      to,
		Subject: "Reset your password",
		HTML:    fmt.Sprintf(`<p>A password reset was requested for this address. <a href="%s">Reset your password</a> within 15 minutes, or ignore this email.</p>`, link),
		Text:    fmt.Sprintf("A password reset was requested. Reset here: %s (expires in 15 minutes)", link),
	})
}

// SendWelcome greets a freshly verified account.
func (n *Notifier) SendWelcome(ctx context.Context, to string) {
	n.send(ctx, "welcome", Message{
		To:      to,
		Subject: "Welcome aboard",
		HTML:    `<p>Your email is verified and your account is ready to use.</p>`,
		Text:    "Your email is verified and your account is ready to use.",
	})
}

// SendPasswordChanged warns the user that their password was changed.
func (n *Notifier) SendPasswordChanged(ctx context.Context, to string) {
	n.send(ctx, "password_changed", Message{
		To:      to,
		Subject: "Your password was changed",
		HTML:    `<p>Your password was just changed and all other sessions were signed out. If this wasn't you, reset your password immediately.</p>`,
		Text:    "Your password was just changed and all other sessions were signed out. If this wasn't you, reset your password immediately.",
	})
}
