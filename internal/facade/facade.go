// Package facade is the security façade + mediator (C14), spec.md §4.11.
// The teacher has no equivalent single entry point — handlers call
// AuthService methods directly. This is new, composed from C6 (token
// validation), C8 (always-audit), and the role-hierarchy idiom from the
// teacher's internal/api/middleware/rbac.go (roleWeights).
package facade

import (
	"context"

	"github.com/google/uuid"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/tokens"
)

// Role mirrors the teacher's three-tier hierarchy.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleWeights = map[Role]int{RoleViewer: 1, RoleEditor: 2, RoleAdmin: 3}

// RoleResolver looks up the caller's role for authorisation — separate from
// token validation since roles can change independently of a live token.
type RoleResolver interface {
	RoleFor(ctx context.Context, userID uuid.UUID) (Role, error)
}

// Operation is a privileged action routed through the façade. Input/Output
// are opaque to the façade itself — it never inspects them, only passes
// them through to Execute.
type Operation[In, Out any] struct {
	Name         string
	RequiredRole Role
	Validate     func(In) error
	Execute      func(ctx context.Context, userID uuid.UUID, in In) (Out, error)
}

// Facade is the single entry point for privileged operations (C14).
type Facade struct {
	tokenSvc *tokens.Service
	roles    RoleResolver
	auditSvc *audit.Service
}

func New(tokenSvc *tokens.Service, roles RoleResolver, auditSvc *audit.Service) *Facade {
	return &Facade{tokenSvc: tokenSvc, roles: roles, auditSvc: auditSvc}
}

// Invoke runs op through the mandatory pipeline: authenticate, authorise,
// validate, execute, always-audit — regardless of where the pipeline
// short-circuits, spec.md §4.11 steps 1-5.
func Invoke[In, Out any](ctx context.Context, f *Facade, bearerToken, ip string, op Operation[In, Out], in In) (out Out, err error) {
	var userID uuid.UUID
	defer func() {
		f.logOperation(ctx, op.Name, userID, ip, err)
	}()

	claims, authErr := f.tokenSvc.Validate(ctx, bearerToken, tokens.KindAccess)
	if authErr != nil {
		err = apperr.Wrap(apperr.KindBadCredentials, "authentication failed", authErr)
		return out, err
	}
	parsedID, parseErr := uuid.Parse(claims.UserID)
	if parseErr != nil {
		err = apperr.Wrap(apperr.KindInternal, "token carried a malformed user id", parseErr)
		return out, err
	}
	userID = parsedID

	if op.RequiredRole != "" {
		role, roleErr := f.roles.RoleFor(ctx, userID)
		if roleErr != nil {
			err = apperr.Wrap(apperr.KindInternal, "failed to resolve role", roleErr)
			return out, err
		}
		if roleWeights[role] < roleWeights[op.RequiredRole] {
			err = apperr.New(apperr.KindBadCredentials, "insufficient permissions")
			return out, err
		}
	}

	if op.Validate != nil {
		if valErr := op.Validate(in); valErr != nil {
			err = apperr.Wrap(apperr.KindValidation, "invalid input", valErr)
			return out, err
		}
	}

	out, err = op.Execute(ctx, userID, in)
	return out, err
}

// logOperation is the "always, regardless of success/failure" audit step
// spec.md §4.11 step 5 mandates — it runs from a defer so no return path
// through Invoke can skip it.
func (f *Facade) logOperation(ctx context.Context, opName string, userID uuid.UUID, ip string, opErr error) {
	status := audit.StatusSuccess
	details := map[string]any{"operation": opName}
	if opErr != nil {
		status = audit.StatusFailed
		details["error"] = opErr.Error()
	}
	if ip == "" {
		ip = "0.0.0.0"
	}
	var uidPtr *uuid.UUID
	if userID != uuid.Nil {
		uidPtr = &userID
	}
	_, _ = f.auditSvc.Append(ctx, audit.Event{
		UserID:      uidPtr,
		EventType:   audit.EventType(opName),
		EventStatus: status,
		IPAddress:   ip,
		Details:     details,
	})
}
