// Package notify builds and delivers the system's outbound email: client
// confirmations at intake, status update notices, and the admin
// notifications that mirror them. Bodies are authored as Markdown
// templates and sent as multipart/alternative with a derived plain-text
// part.
package notify

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("notify: no recipients specified")

// ErrNoTemplate is returned when no template exists for the requested
// notification, for example a status outside the notifiable set.
var ErrNoTemplate = errors.New("notify: no template for notification")

// Message is one fully rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages. Verify is a connection preflight: status
// runs call it before reading the workbook so a dead SMTP server aborts
// the run before any state is touched.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Verify(ctx context.Context) error
}
