package api

import (
	"context"
	"net/http"

	"github.com/traderguard/authcore/internal/api/helpers"
	"github.com/traderguard/authcore/internal/apperr"
	"github.com/traderguard/authcore/internal/audit"
	"github.com/traderguard/authcore/internal/cryptoutil"
	"github.com/traderguard/authcore/internal/facade"
	"github.com/traderguard/authcore/internal/mfa"

	"github.com/google/uuid"
)

const backupCodeCount = 10

type enrollResponse struct {
	SecretKey       string   `json:"secretKey"`
	ProvisioningURI string   `json:"provisioningUri"`
	BackupCodes     []string `json:"backupCodes"`
}

// Enroll implements POST /auth/mfa/enroll (spec.md §6): generates a TOTP
// secret and a fresh set of backup codes, encrypts the secret via C5, and
// enables MFA on the account immediately — the contract names a single
// enroll endpoint, not a separate setup/activate pair.
func (s *Server) Enroll(w http.ResponseWriter, r *http.Request) {
	bearer, err := helpers.ExtractBearerToken(r)
	if err != nil {
		writeAppError(w, apperr.New(apperr.KindTokenMalformed, "missing bearer token"))
		return
	}

	op := facade.Operation[struct{}, enrollResponse]{
		Name: string(audit.EventMFAEnroll),
		Execute: func(ctx context.Context, userID uuid.UUID, _ struct{}) (enrollResponse, error) {
			user, err := s.Users.GetByID(ctx, userID)
			if err != nil {
				return enrollResponse{}, err
			}

			material, err := s.MFA.GenerateSecret(user.Email)
			if err != nil {
				return enrollResponse{}, err
			}

			encrypted, err := s.Decryptor.Encrypt(ctx, []byte(material.Secret))
			if err != nil {
				return enrollResponse{}, apperr.Wrap(apperr.KindInternal, "failed to encrypt mfa secret", err)
			}

			codes, err := mfa.GenerateBackupCodes(backupCodeCount)
			if err != nil {
				return enrollResponse{}, err
			}
			hashed := make([]string, len(codes))
			for i, c := range codes {
				hashed[i] = cryptoutil.HashToken(c)
			}
			if err := s.BackupCodes.Replace(ctx, userID, hashed); err != nil {
				return enrollResponse{}, err
			}

			if err := s.Users.SetMFA(ctx, userID, true, encrypted); err != nil {
				return enrollResponse{}, apperr.Wrap(apperr.KindInternal, "failed to enable mfa", err)
			}

			return enrollResponse{
				SecretKey:       material.Secret,
				ProvisioningURI: material.ProvisioningURI,
				BackupCodes:     codes,
			}, nil
		},
	}

	out, err := facade.Invoke(r.Context(), s.Facade, bearer, r.RemoteAddr, op, struct{}{})
	if err != nil {
		writeAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, out)
}

type verifyMFARequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// VerifyMFA implements POST /auth/mfa/verify (spec.md §6): completes a
// login that returned requiresMfa:true. Accepts either a current TOTP
// code or a single-use backup code, per spec.md §4.5.
func (s *Server) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeAppError(w, apperr.New(apperr.KindBadCredentials, "invalid credentials"))
		return
	}
	user, err := s.Users.GetByID(r.Context(), userID)
	if err != nil || !user.MFAEnabled {
		writeAppError(w, apperr.New(apperr.KindBadCredentials, "invalid credentials"))
		return
	}

	secretBytes, err := s.Decryptor.Decrypt(r.Context(), user.MFASecretEncrypted)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to decrypt mfa secret", err))
		return
	}

	ok, err := s.MFA.ValidateCode(r.Context(), user.ID.String(), req.Code, string(secretBytes))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if ok {
		s.finishLogin(w, r, userID, helpers.DeviceFingerprint(r))
		return
	}

	redeemed, remaining, err := s.BackupCodes.Redeem(r.Context(), userID, cryptoutil.HashToken(req.Code))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !redeemed {
		writeAppError(w, apperr.New(apperr.KindBadMFA, "invalid mfa code"))
		return
	}
	if remaining == 0 {
		_, _ = s.Audit.Append(r.Context(), audit.Event{
			UserID:      &userID,
			EventType:   audit.EventMFABackupExhausted,
			EventStatus: audit.StatusPending,
			IPAddress:   r.RemoteAddr,
		})
	}
	s.finishLogin(w, r, userID, helpers.DeviceFingerprint(r))
}
