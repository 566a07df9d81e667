package notify

import (
	"context"
	"log/slog"

	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/mailer"
)

// SESMailer implements EmailSender by calling AWS SES directly, an
// alternative to ProductionMailer's outbox-and-worker path for deployments
// that don't want to run a separate email worker process. Every call goes
// through the "email" breaker the same way ProductionMailer's enqueue does.
type SESMailer struct {
	Provider *mailer.SESProvider
	Breakers *breaker.Facade
	Logger   *slog.Logger
}

func NewSESMailer(provider *mailer.SESProvider, breakers *breaker.Facade, logger *slog.Logger) *SESMailer {
	return &SESMailer{Provider: provider, Breakers: breakers, Logger: logger}
}

func (m *SESMailer) send(ctx context.Context, to string, template mailer.EmailTemplate, data map[string]any) error {
	payload := mailer.EmailPayload{To: to, Template: template, Data: data, RequestID: requestID(ctx)}
	_, err := breaker.Execute(ctx, m.Breakers, breaker.Email, func(ctx context.Context) (string, error) {
		return m.Provider.Send(ctx, payload)
	})
	if err != nil {
		m.Logger.Error("ses send failed", "to_hash", mailer.HashRecipient(to), "template", template, "error", err)
		return err
	}
	return nil
}

func (m *SESMailer) SendInvitation(ctx context.Context, to string, inviteURL string) error {
	return m.send(ctx, to, mailer.TemplateInviteUser, map[string]any{"link": inviteURL})
}

func (m *SESMailer) SendPasswordReset(ctx context.Context, to string, token string, appURL string) error {
	return m.send(ctx, to, mailer.TemplatePasswordReset, map[string]any{"link": appURL + "/auth/reset?token=" + token})
}

func (m *SESMailer) SendVerification(ctx context.Context, to string, token string, appURL string) error {
	return m.send(ctx, to, mailer.TemplateEmailVerification, map[string]any{"link": appURL + "/auth/verify/email/" + token})
}
