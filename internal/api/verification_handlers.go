package api

import (
	"net/http"

	"github.com/traderguard/authcore/internal/api/helpers"
)

type resendVerificationRequest struct {
	Email string `json:"email"`
}

// ResendVerification re-issues an email-verification token. Silent on
// unknown or already-verified addresses, matching the enumeration
// resistance of InitiateReset.
func (s *Server) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_ = s.Registration.ResendVerification(r.Context(), req.Email, r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}

// VerifyEmail implements GET /auth/verify/email/{token} (spec.md §6).
func (s *Server) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := urlParam(r, "token")
	if err := s.Registration.VerifyEmail(r.Context(), token, r.RemoteAddr); err != nil {
		helpers.RespondJSON(w, http.StatusGone, map[string]string{"error": "token_invalid_or_expired"})
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
