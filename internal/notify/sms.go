package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/mailer"
)

// SMSSender delivers a short notification or verification code to a phone
// number. Production mobile verification is normative per spec.md's
// redesign flags — the source's "accept any 6-digit code" development
// shortcut has no equivalent here.
type SMSSender interface {
	SendCode(ctx context.Context, toE164, code string) error
	SendAlert(ctx context.Context, toE164, message string) error
}

// DevSMSSender prints SMS messages to the log (safe for development).
type DevSMSSender struct {
	Logger *slog.Logger
}

func (s *DevSMSSender) SendCode(ctx context.Context, toE164, code string) error {
	s.Logger.Info("📱 SMS SENT", "to", toE164, "type", "verification_code", "code", code)
	return nil
}

func (s *DevSMSSender) SendAlert(ctx context.Context, toE164, message string) error {
	s.Logger.Info("📱 SMS SENT", "to", toE164, "type", "alert", "message", message)
	return nil
}

// ProductionSMSSender delivers via AWS SNS, wrapped in the "sms" breaker
// (spec.md §4.2/§5 name the SMS dependency explicitly).
type ProductionSMSSender struct {
	Sender   mailer.SMSSender
	Breakers *breaker.Facade
	Logger   *slog.Logger
}

func NewProductionSMSSender(sender mailer.SMSSender, breakers *breaker.Facade, logger *slog.Logger) *ProductionSMSSender {
	return &ProductionSMSSender{Sender: sender, Breakers: breakers, Logger: logger}
}

func (s *ProductionSMSSender) SendCode(ctx context.Context, toE164, code string) error {
	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	_, err := breaker.Execute(ctx, s.Breakers, breaker.SMS, func(ctx context.Context) (string, error) {
		return s.Sender.Send(ctx, toE164, body)
	})
	if err != nil {
		s.Logger.Error("failed to send verification sms", "error", err)
		return fmt.Errorf("failed to send sms: %w", err)
	}
	return nil
}

func (s *ProductionSMSSender) SendAlert(ctx context.Context, toE164, message string) error {
	_, err := breaker.Execute(ctx, s.Breakers, breaker.SMS, func(ctx context.Context) (string, error) {
		return s.Sender.Send(ctx, toE164, message)
	})
	if err != nil {
		s.Logger.Error("failed to send alert sms", "error", err)
		return fmt.Errorf("failed to send sms: %w", err)
	}
	return nil
}
