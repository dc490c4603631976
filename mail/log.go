package mail

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to a logger instead of sending them. It is the
// development transport.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer; a nil logger uses slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, ErrNoRecipient
	}
	m.logger.InfoContext(ctx, "dev email",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return Receipt{Delivered: true, ID: "dev"}, nil
}
