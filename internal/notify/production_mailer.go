package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/mailer"
)

// ProductionMailer implements EmailSender using the async outbox pattern:
// Send* calls enqueue a row in email_outbox and return quickly; a
// workerpool.BatchRunner-driven worker (cmd/worker) later drains the
// outbox through an EmailProvider (SMTP or SES). The enqueue step itself
// is wrapped in the "email" breaker since it is still a database call that
// can fail under load.
type ProductionMailer struct {
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Breakers *breaker.Facade
}

func NewProductionMailer(pool *pgxpool.Pool, logger *slog.Logger, breakers *breaker.Facade) *ProductionMailer {
	return &ProductionMailer{Pool: pool, Logger: logger, Breakers: breakers}
}

func (m *ProductionMailer) enqueue(ctx context.Context, payload mailer.EmailPayload) error {
	_, err := breaker.Execute(ctx, m.Breakers, breaker.Email, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, mailer.EnqueueEmail(ctx, m.Pool, payload)
	})
	return err
}

func (m *ProductionMailer) SendInvitation(ctx context.Context, to string, inviteURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		Template:  mailer.TemplateInviteUser,
		Data:      map[string]any{"link": inviteURL},
		RequestID: requestID(ctx),
	}
	if err := m.enqueue(ctx, payload); err != nil {
		m.Logger.Error("failed to enqueue invitation email", "to_hash", mailer.HashRecipient(to), "error", err)
		return fmt.Errorf("failed to send invitation: %w", err)
	}
	m.Logger.Info("invitation email enqueued", "to_hash", mailer.HashRecipient(to))
	return nil
}

func (m *ProductionMailer) SendPasswordReset(ctx context.Context, to string, token string, appURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		Template:  mailer.TemplatePasswordReset,
		Data:      map[string]any{"link": appURL + "/auth/reset?token=" + token},
		RequestID: requestID(ctx),
	}
	if err := m.enqueue(ctx, payload); err != nil {
		m.Logger.Error("failed to enqueue password reset email", "to_hash", mailer.HashRecipient(to), "error", err)
		return fmt.Errorf("failed to send password reset: %w", err)
	}
	m.Logger.Info("password reset email enqueued", "to_hash", mailer.HashRecipient(to))
	return nil
}

func (m *ProductionMailer) SendVerification(ctx context.Context, to string, token string, appURL string) error {
	payload := mailer.EmailPayload{
		To:        to,
		Template:  mailer.TemplateEmailVerification,
		Data:      map[string]any{"link": appURL + "/auth/verify/email/" + token},
		RequestID: requestID(ctx),
	}
	if err := m.enqueue(ctx, payload); err != nil {
		m.Logger.Error("failed to enqueue verification email", "to_hash", mailer.HashRecipient(to), "error", err)
		return fmt.Errorf("failed to send verification: %w", err)
	}
	m.Logger.Info("verification email enqueued", "to_hash", mailer.HashRecipient(to))
	return nil
}

func requestID(ctx context.Context) string {
	return uuid.New().String()
}
