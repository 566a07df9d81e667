// Package mailer provides transactional email and SMS delivery.
// Implements SSRF protection and async outbox processing.
package mailer

import (
	"context"
)

// EmailProvider defines the contract for transactional email delivery.
// Implementations MUST be:
// - Thread-safe (supports concurrent sends)
// - Idempotent (retry-safe, same payload → same result)
// - Observable (returns tracking metadata for audit logging)
//
// Security Requirements:
// - Validate all inputs before constructing SMTP message (Law 1: Input is Toxic)
// - Never log passwords or decrypted credentials (Law 2: Silence is Golden)
// - Implement egress filtering to prevent SSRF (Law 3: Infrastructure is a Fortress)
type EmailProvider interface {
	// Send delivers an email and returns the provider's message ID for tracking.
	// Returns error if validation fails, SMTP connection fails, or delivery is rejected.
	//
	// Context:
	// - ctx should have timeout (recommended: 15s max to prevent worker starvation)
	// - ctx.Done() should be checked to handle cancellation gracefully
	Send(ctx context.Context, payload EmailPayload) (providerMessageID string, err error)
}

// EmailPayload encapsulates all data required for sending an email.
// ALL fields are validated in the Business Logic layer BEFORE calling Send().
//
// Validation Checklist:
// - To: Must pass net/mail.ParseAddress (prevents SMTP header injection)
// - Template: Must be in ValidTemplates map (prevents path traversal)
// - Data: Must be pre-sanitized (no raw user input in template variables)
type EmailPayload struct {
	// Recipient email address (MUST be validated via net/mail.ParseAddress)
	To string `json:"to"`

	// Template name (restricts to whitelisted templates, prevents injection)
	Template EmailTemplate `json:"template"`

	// Template data (MUST be pre-sanitized, use DTOs not raw DB models)
	// Example: {"UserName": "John", "InviteLink": "https://..."}
	Data map[string]any `json:"data"`

	// Request ID for distributed tracing (Sentry correlation)
	RequestID string `json:"request_id"`
}

// EmailTemplate is an enum to prevent arbitrary template path injection.
// Only these templates are allowed. Adding a new template requires code change
// (intentional - forces security review).
type EmailTemplate string

const (
	TemplateInviteUser        EmailTemplate = "invite_user"
	TemplatePasswordReset     EmailTemplate = "password_reset"
	TemplateEmailVerification EmailTemplate = "email_verification"
	TemplateMFAEnabled        EmailTemplate = "mfa_enabled"
	TemplateMFADisabled       EmailTemplate = "mfa_disabled"
	TemplateAccountLocked     EmailTemplate = "account_locked"
	TemplatePasswordChanged   EmailTemplate = "password_changed"
)

// ValidTemplates is a set of allowed templates for runtime validation.
// Check this before calling Send() to prevent unauthorized template usage.
var ValidTemplates = map[EmailTemplate]bool{
	TemplateInviteUser:        true,
	TemplatePasswordReset:     true,
	TemplateEmailVerification: true,
	TemplateMFAEnabled:        true,
	TemplateMFADisabled:       true,
	TemplateAccountLocked:     true,
	TemplatePasswordChanged:   true,
}

// SMTPConfig holds system-wide SMTP configuration. internal/config does not
// load it: it has no SMTP host, port or credential settings.
//
// Security Notes:
// - PassEncrypted MUST be decrypted via a cryptoutil.CredentialEncryptor (C4/C5)
//   before use, never stored or logged in plaintext
// - Host and Port MUST be validated via ValidateSMTPHost/Port (SSRF protection)
// - From MUST be validated via net/mail.ParseAddress (MIME injection prevention)
type SMTPConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	PassEncrypted string `json:"pass_encrypted"`
	From          string `json:"from"`
	TLSMode       string `json:"tls_mode"` // "starttls" or "tls"
}

// SMSSender delivers a single short notification message to a phone number
// in E.164 format — used for the production mobile-verification path
// spec.md's redesign flags call out (replacing the source's "accept any
// 6-digit code in dev mode" shortcut) and for MFA-adjacent account alerts.
type SMSSender interface {
	Send(ctx context.Context, toE164, body string) (providerMessageID string, err error)
}
