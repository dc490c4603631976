package mail

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("mail: no recipient")

// Message is one outgoing mail. HTML may be empty.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Receipt reports what the transport did with a message.
type Receipt struct {
	Delivered bool
	ID        string
}

// Mailer delivers messages. Callers treat failures as non-fatal.
type Mailer interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// MailerFunc adapts a function to [Mailer].
type MailerFunc func(ctx context.Context, msg Message) (Receipt, error)

func (f MailerFunc) Send(ctx context.Context, msg Message) (Receipt, error) {
	return f(ctx, msg)
}
