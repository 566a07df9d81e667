package api

import (
	"context"
	"net/http"

	"github.com/traderguard/authcore/internal/api/helpers"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/facade"

	"github.com/google/uuid"
)

type resetInitiateRequest struct {
	Email string `json:"email"`
}

// InitiateReset implements POST /auth/password/reset/initiate — always
// 202, whether or not the address is registered (spec.md §6).
func (s *Server) InitiateReset(w http.ResponseWriter, r *http.Request) {
	var req resetInitiateRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_ = s.Passwords.InitiateReset(r.Context(), req.Email, r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}

type resetCompleteRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// CompleteReset implements POST /auth/password/reset/complete.
func (s *Server) CompleteReset(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Passwords.CompleteReset(r.Context(), req.Token, req.NewPassword, r.RemoteAddr); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword implements POST /auth/password/change, authenticated via
// the security façade (spec.md §4.11) rather than bespoke middleware.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bearer, err := helpers.ExtractBearerToken(r)
	if err != nil {
		writeAppError(w, apperr.New(apperr.KindTokenMalformed, "missing bearer token"))
		return
	}

	op := facade.Operation[changePasswordRequest, struct{}]{
		Name: "PASSWORD_CHANGE",
		Validate: func(in changePasswordRequest) error {
			if in.NewPassword == "" || in.CurrentPassword == "" {
				return apperr.New(apperr.KindValidation, "currentPassword and newPassword are required")
			}
			return nil
		},
		Execute: func(ctx context.Context, userID uuid.UUID, in changePasswordRequest) (struct{}, error) {
			return struct{}{}, s.Passwords.Change(ctx, userID, in.CurrentPassword, in.NewPassword, r.RemoteAddr)
		},
	}

	if _, err := facade.Invoke(r.Context(), s.Facade, bearer, r.RemoteAddr, op, req); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
