package api

import (
	"net/http"
	"time"

	"github.com/traderguard/authcore/internal/api/helpers"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/registration"
	"github.com/traderguard/authcore/internal/strategy"
	"github.com/traderguard/authcore/internal/tokens"

	"github.com/google/uuid"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type registerResponse struct {
	User userDTO `json:"user"`
}

// Register implements POST /auth/register (spec.md §6).
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := s.Registration.Register(r.Context(), registration.Input{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	userID, err := uuid.Parse(outcome.UserID)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "malformed user id", err))
		return
	}
	user, err := s.Users.GetByID(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, registerResponse{User: toUserDTO(user)})
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	MFACode        string `json:"mfaCode"`
	SocialProvider string `json:"socialProvider"`
	SocialToken    string `json:"socialToken"`
}

type loginResponse struct {
	AccessToken       string  `json:"accessToken,omitempty"`
	RefreshToken      string  `json:"refreshToken,omitempty"`
	TokenType         string  `json:"tokenType,omitempty"`
	ExpiresIn         int     `json:"expiresIn,omitempty"`
	User              userDTO `json:"user"`
	DeviceFingerprint string  `json:"deviceFingerprint,omitempty"`
	RequiresMFA       bool    `json:"requiresMfa,omitempty"`
}

// Login implements POST /auth/login (spec.md §6). The strategy registry
// resolves which credential path applies (password, MFA, social); when
// the password strategy reports MFA_REQUIRED it still returns the
// matched user id, so the response can carry requiresMfa:true without
// disclosing anything else about the account.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fingerprint := helpers.DeviceFingerprint(r)
	creds := strategy.Credentials{
		Email:             req.Email,
		Password:          req.Password,
		TOTPCode:          req.MFACode,
		SocialProvider:    req.SocialProvider,
		SocialToken:       req.SocialToken,
		IPAddress:         r.RemoteAddr,
		UserAgent:         r.UserAgent(),
		DeviceFingerprint: fingerprint,
	}

	res, _, err := s.Strategies.Authenticate(r.Context(), creds)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindMFARequired && res.UserID != uuid.Nil {
			user, lookupErr := s.Users.GetByID(r.Context(), res.UserID)
			if lookupErr != nil {
				writeAppError(w, lookupErr)
				return
			}
			helpers.RespondJSON(w, http.StatusOK, loginResponse{User: toUserDTO(user), RequiresMFA: true})
			return
		}
		writeAppError(w, err)
		return
	}

	s.finishLogin(w, r, res.UserID, fingerprint)
}

// finishLogin issues a token pair and records a session for an already
// authenticated user, shared by Login and VerifyMFA.
func (s *Server) finishLogin(w http.ResponseWriter, r *http.Request, userID uuid.UUID, fingerprint string) {
	user, err := s.Users.GetByID(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	pair, err := s.Tokens.Issue(r.Context(), userID.String(), fingerprint)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if _, err := s.Sessions.Create(r.Context(), userID, fingerprint, r.RemoteAddr, r.UserAgent()); err != nil {
		writeAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, loginResponse{
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		TokenType:         "Bearer",
		ExpiresIn:         pair.ExpiresIn,
		User:              toUserDTO(user),
		DeviceFingerprint: fingerprint,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh implements POST /auth/refresh (spec.md §6).
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fingerprint := helpers.DeviceFingerprint(r)
	pair, err := s.Tokens.Refresh(r.Context(), req.RefreshToken, fingerprint)
	if err != nil {
		writeAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Logout implements POST /auth/logout (spec.md §6): revokes the
// presented access token for the remainder of its natural lifetime.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	raw, err := helpers.ExtractBearerToken(r)
	if err != nil {
		writeAppError(w, apperr.New(apperr.KindTokenMalformed, "missing bearer token"))
		return
	}

	claims, err := s.Tokens.Validate(r.Context(), raw, tokens.KindAccess)
	if err != nil {
		writeAppError(w, err)
		return
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		remaining = 0
	}
	if err := s.Tokens.Revoke(r.Context(), claims.ID, remaining+time.Minute); err != nil {
		writeAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
