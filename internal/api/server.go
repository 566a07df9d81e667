// Package api wires authcore's HTTP surface (spec.md §6) onto the
// services built up in internal/*. Grounded on the teacher's
// internal/api package (chi router, Server struct, helpers/middleware
// split) with every tenant-scoped handler dropped: authcore has no
// Tenant entity, so registration, login, session and MFA management are
// all plain per-user operations instead of per-tenant ones.
package api

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/api/helpers"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/cryptoutil"
	"github.com/traderguard/authcore/internal/facade"
	"github.com/traderguard/authcore/internal/mfa"
	"github.com/traderguard/authcore/internal/passwordmgmt"
	"github.com/traderguard/authcore/internal/registration"
	"github.com/traderguard/authcore/internal/session"
	"github.com/traderguard/authcore/internal/strategy"
	"github.com/traderguard/authcore/internal/tokens"
	"github.com/traderguard/authcore/internal/userstore"

	"github.com/go-chi/chi/v5"
)

// Server holds every dependency an HTTP handler needs. Built once in
// cmd/api and handed to NewRouter.
type Server struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Breakers     *breaker.Facade
	Audit        *audit.Service
	Tokens       *tokens.Service
	Sessions     *session.Manager
	Strategies   *strategy.Registry
	Registration *registration.Service
	Passwords    *passwordmgmt.Service
	MFA          *mfa.Service
	Users        *userstore.Store
	BackupCodes  *userstore.BackupCodeStore
	Decryptor    *cryptoutil.CredentialEncryptor
	Facade       *facade.Facade

	SessionSettings session.Settings
	TOTPIssuer      string
}

// userDTO is the public shape of a User entity, spec.md §3 minus
// password_hash/mfa_secret_encrypted.
type userDTO struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	EmailVerified bool   `json:"emailVerified"`
	MFAEnabled    bool   `json:"mfaEnabled"`
}

func toUserDTO(u *userstore.User) userDTO {
	return userDTO{
		ID:            u.ID.String(),
		Email:         u.Email,
		FullName:      u.FullName,
		EmailVerified: u.EmailVerified,
		MFAEnabled:    u.MFAEnabled,
	}
}

// writeAppError maps an apperr.Error to the HTTP response spec.md §7
// mandates: authentication-adjacent kinds collapse to a generic
// bad_credentials body regardless of the underlying cause, a tripped
// circuit breaker surfaces its dependency name via X-Upstream-Degraded,
// and everything else returns its own message since it isn't an
// enumeration oracle.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	switch kind {
	case apperr.KindBadCredentials, apperr.KindTokenMalformed, apperr.KindTokenExpired,
		apperr.KindTokenRevoked, apperr.KindTokenWrongKind, apperr.KindDeviceMismatch:
		helpers.RespondError(w, status, "bad_credentials")
	case apperr.KindUpstreamUnavailable, apperr.KindUpstreamTimeout:
		if ae, ok := apperr.As(err); ok {
			if be, ok := ae.Cause.(*breaker.BreakerError); ok {
				w.Header().Set("X-Upstream-Degraded", string(be.Dependency))
			}
		}
		helpers.RespondError(w, status, "upstream_unavailable")
	case apperr.KindAccountLocked:
		helpers.RespondError(w, status, "account_locked")
	case apperr.KindMFARequired:
		helpers.RespondError(w, status, "mfa_required")
	default:
		if ae, ok := apperr.As(err); ok {
			helpers.RespondError(w, status, ae.Message)
			return
		}
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
