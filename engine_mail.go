package finauth

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/finauth/internal/flows"
	"github.com/MrEthical07/finauth/mail"
)

// deliver renders and sends m. Failures are logged, counted and audited but
// never returned.
func (e *Engine) deliver(ctx context.Context, m flows.Mail) {
	var (
		msg  mail.Message
		err  error
		kind string
	)
	switch m.Kind {
	case flows.MailVerification:
		kind = "verification"
		msg, err = e.templates.Verification(m.To, m.Name, m.Token)
	case flows.MailPasswordReset:
		kind = "password_reset"
		msg, err = e.templates.PasswordReset(m.To, m.Name, m.Token)
	default:
		e.logger.ErrorContext(ctx, "unknown mail kind", slog.Int("kind", int(m.Kind)))
		return
	}
	if err == nil {
		_, err = e.mailer.Send(ctx, msg)
	}
	if err != nil {
		e.metricInc(MetricMailFailed)
		e.logger.WarnContext(ctx, "mail delivery failed",
			slog.String("kind", kind),
			slog.String("user_id", m.UserID),
			slog.Any("error", err),
		)
		e.emitAudit(ctx, auditEventMailDeliveryFailure, false, m.UserID, "", err, func() map[string]string {
			return map[string]string{"kind": kind}
		})
		return
	}
	e.metricInc(MetricMailDelivered)
}
