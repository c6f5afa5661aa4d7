// Package notify delivers the transactional emails the auth core sends:
// verification links, reset links, and security notifications.
//
// Delivery is best-effort everywhere: failures are logged and never
// propagated into the business operation that triggered the send.
package notify

import "context"

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender is the outbound email collaborator.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}
