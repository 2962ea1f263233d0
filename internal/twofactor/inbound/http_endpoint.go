package inbound

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/jwt"
	"github.com/shandysiswandi/twofa/internal/pkg/router"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
)

const headerIdempotencyKey = "Idempotency-Key"

// HTTPEndpoint exposes HTTP handlers for two-factor settings and the login
// second step.
type HTTPEndpoint struct {
	uc uc
}

func authClaims(r *router.Request) (*jwt.Claims, error) {
	clm := jwt.GetAuth(r.Context())
	if clm == nil || clm.UserID <= 0 {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}
	return clm, nil
}

func toLoginSessionResponse(s *usecase.LoginSession) LoginSessionResponse {
	return LoginSessionResponse{
		SessionID:         s.SessionID,
		State:             s.State.String(),
		AttemptsRemaining: s.AttemptsRemaining,
		ExpiresAt:         s.ExpiresAt,
	}
}

// Status returns the two-factor summary of the authenticated user.
// @Summary Two-factor status
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} router.successResponse{data=StatusResponse}
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Router /api/v1/2fa/status [get]
func (h *HTTPEndpoint) Status(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	st, err := h.uc.Status(r.Context(), usecase.StatusInput{UserID: clm.UserID})
	if err != nil {
		return nil, err
	}

	resp := StatusResponse{
		Enabled:              st.Enabled,
		EnabledAt:            st.EnabledAt,
		LastUsedAt:           st.LastUsedAt,
		RemainingBackupCodes: st.RemainingBackupCodes,
		TrustedDevices:       st.TrustedDevices,
	}
	if st.Enabled {
		resp.Method = st.Method.String()
	}

	return resp, nil
}

// BeginEnrollment creates a new TOTP seed awaiting confirmation.
// @Summary Begin TOTP enrollment
// @Description Returns the Base32 secret and otpauth URI. Calling it again replaces the pending seed.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BeginEnrollmentRequest false "Enrollment payload"
// @Success 200 {object} router.successResponse{data=BeginEnrollmentResponse}
// @Failure 409 {object} router.errorResponse "Already enabled"
// @Router /api/v1/2fa/enrollment [post]
func (h *HTTPEndpoint) BeginEnrollment(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	var req BeginEnrollmentRequest
	if r.ContentLength != 0 {
		if err := r.DecodeBody(&req); err != nil {
			return nil, err
		}
	}

	accountName := strings.TrimSpace(req.AccountName)
	if accountName == "" {
		accountName = clm.UserEmail
	}

	out, err := h.uc.BeginEnrollment(r.Context(), usecase.BeginEnrollmentInput{
		UserID:      clm.UserID,
		AccountName: accountName,
	})
	if err != nil {
		return nil, err
	}

	return BeginEnrollmentResponse{
		Secret:          out.Secret.Reveal(),
		ProvisioningURI: out.ProvisioningURI.Reveal(),
		ExpiresAt:       out.ExpiresAt,
	}, nil
}

// ConfirmEnrollment enables two-factor once the user proves the seed works.
// A wrong code answers 200 with enabled=false and keeps the pending seed.
// @Summary Confirm TOTP enrollment
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ConfirmEnrollmentRequest true "Confirmation payload"
// @Success 200 {object} router.successResponse{data=ConfirmEnrollmentResponse} "enabled is false when the code does not match"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "No pending enrollment"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Router /api/v1/2fa/enrollment/confirm [post]
func (h *HTTPEndpoint) ConfirmEnrollment(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	var req ConfirmEnrollmentRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.ConfirmEnrollment(r.Context(), usecase.ConfirmEnrollmentInput{
		UserID: clm.UserID,
		Code:   req.Code,
	})
	if err != nil {
		return nil, err
	}

	return ConfirmEnrollmentResponse{Enabled: out.Enabled, BackupCodes: out.BackupCodes}, nil
}

// Disable turns two-factor off for the authenticated user.
// @Summary Disable two-factor
// @Tags TwoFactor
// @Security BearerAuth
// @Success 204 "No Content"
// @Failure 404 {object} router.errorResponse "Not enabled"
// @Router /api/v1/2fa/disable [post]
func (h *HTTPEndpoint) Disable(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	if err := h.uc.Disable(r.Context(), usecase.DisableInput{UserID: clm.UserID}); err != nil {
		return nil, err
	}

	return DisableResponse{}, nil
}

// RegenerateBackupCodes replaces every backup code. Send an Idempotency-Key
// header to make retries safe.
// @Summary Regenerate backup codes
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client generated key"
// @Success 200 {object} router.successResponse{data=BackupCodesResponse}
// @Failure 409 {object} router.errorResponse "Duplicate request"
// @Router /api/v1/2fa/backup-codes [post]
func (h *HTTPEndpoint) RegenerateBackupCodes(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	out, err := h.uc.RegenerateBackupCodes(r.Context(), usecase.RegenerateBackupCodesInput{
		UserID:         clm.UserID,
		IdempotencyKey: r.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		return nil, err
	}

	return BackupCodesResponse{BackupCodes: out.BackupCodes}, nil
}

// ListTrustedDevices returns the remembered devices, newest first.
// @Summary List trusted devices
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} router.successResponse{data=[]TrustedDeviceResponse}
// @Router /api/v1/2fa/trusted-devices [get]
func (h *HTTPEndpoint) ListTrustedDevices(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	views, err := h.uc.ListTrustedDevices(r.Context(), usecase.ListTrustedDevicesInput{UserID: clm.UserID})
	if err != nil {
		return nil, err
	}

	return TrustedDeviceListResponse(lo.Map(views, func(v usecase.TrustedDeviceView, _ int) TrustedDeviceResponse {
		return TrustedDeviceResponse{
			ID:        v.ID,
			Label:     v.Label,
			Metadata:  v.Metadata,
			CreatedAt: v.CreatedAt,
			ExpiresAt: v.ExpiresAt,
			Expired:   v.Expired,
		}
	})), nil
}

// RevokeTrustedDevice forgets one remembered device.
// @Summary Revoke trusted device
// @Tags TwoFactor
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 204 "No Content"
// @Router /api/v1/2fa/trusted-devices/{id} [delete]
func (h *HTTPEndpoint) RevokeTrustedDevice(r *router.Request) (any, error) {
	clm, err := authClaims(r)
	if err != nil {
		return nil, err
	}

	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	if err := h.uc.RevokeTrustedDevice(r.Context(), usecase.RevokeTrustedDeviceInput{
		UserID:   clm.UserID,
		DeviceID: id,
	}); err != nil {
		return nil, err
	}

	return RevokeTrustedDeviceResponse{}, nil
}

// AdminReset removes two-factor from another user's account.
// @Summary Reset a user's two-factor
// @Tags TwoFactor, Admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204 "No Content"
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Router /api/v1/2fa/admin/users/{id}/reset [post]
func (h *HTTPEndpoint) AdminReset(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	if err := h.uc.AdminReset(r.Context(), usecase.AdminResetInput{UserID: id}); err != nil {
		return nil, err
	}

	return AdminResetResponse{}, nil
}

// BeginLogin opens a pending-auth session for a user whose password was
// already checked by the caller.
// @Summary Begin login second step
// @Tags TwoFactor, Internal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BeginLoginRequest true "Login payload"
// @Success 201 {object} router.successResponse{data=BeginLoginResponse}
// @Failure 403 {object} router.errorResponse "Forbidden"
// @Failure 404 {object} router.errorResponse "Two-factor not enabled"
// @Router /internal/v1/2fa/login [post]
func (h *HTTPEndpoint) BeginLogin(r *router.Request) (any, error) {
	var req BeginLoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.AuthorizedBeginLogin(r.Context(), usecase.BeginLoginInput{UserID: req.UserID})
	if err != nil {
		return nil, err
	}

	return BeginLoginResponse{LoginSessionResponse: toLoginSessionResponse(sess)}, nil
}

func (h *HTTPEndpoint) GetLoginSession(r *router.Request) (any, error) {
	var req SessionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.GetLoginSession(r.Context(), usecase.SessionInput{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	return toLoginSessionResponse(sess), nil
}

// SubmitCode checks a TOTP or backup code, depending on the session mode.
// @Summary Submit login code
// @Tags TwoFactor, Authentication
// @Accept json
// @Produce json
// @Param request body SubmitCodeRequest true "Code payload"
// @Success 200 {object} router.successResponse{data=SubmitCodeResponse}
// @Failure 401 {object} router.errorResponse "Invalid code"
// @Failure 410 {object} router.errorResponse "Session closed or expired"
// @Failure 429 {object} router.errorResponse "Too many attempts"
// @Router /api/v1/2fa/login/code [post]
func (h *HTTPEndpoint) SubmitCode(r *router.Request) (any, error) {
	var req SubmitCodeRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.SubmitCode(r.Context(), usecase.SubmitCodeInput{
		SessionID:      req.SessionID,
		Code:           req.Code,
		RememberDevice: req.RememberDevice,
		Device: usecase.DeviceContext{
			Label:     req.DeviceLabel,
			UserAgent: r.UserAgent(),
			IP:        r.RemoteAddr,
		},
	})
	if err != nil {
		return nil, err
	}

	switch out.Outcome {
	case entity.OutcomeVerified:
		return SubmitCodeResponse{
			Verified:    true,
			UserID:      out.UserID,
			DeviceID:    out.DeviceID,
			DeviceToken: out.DeviceToken.Reveal(),
		}, nil
	case entity.OutcomeLocked:
		return nil, goerror.NewBusiness("Too many attempts", goerror.CodeTooManyRequest)
	default:
		return nil, goerror.WithFields(
			goerror.NewBusiness("Invalid code, please try again", goerror.CodeUnauthorized),
			"attempts_remaining", strconv.Itoa(out.AttemptsRemaining),
		)
	}
}

func (h *HTTPEndpoint) SwitchToBackupMode(r *router.Request) (any, error) {
	var req SessionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.SwitchToBackupMode(r.Context(), usecase.SessionInput{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	return toLoginSessionResponse(sess), nil
}

func (h *HTTPEndpoint) SwitchToCodeMode(r *router.Request) (any, error) {
	var req SessionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	sess, err := h.uc.SwitchToCodeMode(r.Context(), usecase.SessionInput{SessionID: req.SessionID})
	if err != nil {
		return nil, err
	}

	return toLoginSessionResponse(sess), nil
}

// BypassViaTrustedDevice completes the login with a remembered device token.
// @Summary Login with trusted device
// @Tags TwoFactor, Authentication
// @Accept json
// @Produce json
// @Param request body TrustedDeviceLoginRequest true "Device payload"
// @Success 200 {object} router.successResponse{data=SubmitCodeResponse}
// @Failure 401 {object} router.errorResponse "Device not recognized"
// @Failure 409 {object} router.errorResponse "A code was already attempted"
// @Router /api/v1/2fa/login/trusted-device [post]
func (h *HTTPEndpoint) BypassViaTrustedDevice(r *router.Request) (any, error) {
	var req TrustedDeviceLoginRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.BypassViaTrustedDevice(r.Context(), usecase.BypassViaTrustedDeviceInput{
		SessionID:   req.SessionID,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		return nil, err
	}

	if !out.Verified {
		return nil, goerror.NewBusiness("Trusted device not recognized, please enter a code", goerror.CodeUnauthorized)
	}

	return SubmitCodeResponse{Verified: true, UserID: out.UserID}, nil
}

func (h *HTTPEndpoint) CancelLogin(r *router.Request) (any, error) {
	var req SessionRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	if err := h.uc.CancelLogin(r.Context(), usecase.SessionInput{SessionID: req.SessionID}); err != nil {
		return nil, err
	}

	return CancelLoginResponse{}, nil
}
