package inbound

import (
	"net/http"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/valueobject"
)

type StatusResponse struct {
	Enabled              bool       `json:"enabled"`
	Method               string     `json:"method,omitempty"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
	TrustedDevices       int        `json:"trusted_devices"`
}

type BeginEnrollmentRequest struct {
	// AccountName defaults to the email in the access token.
	AccountName string `json:"account_name"`
}

type BeginEnrollmentResponse struct {
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioning_uri"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type ConfirmEnrollmentRequest struct {
	Code string `json:"code"`
}

type ConfirmEnrollmentResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
}

func (r ConfirmEnrollmentResponse) Message() string {
	if !r.Enabled {
		return "Invalid code, please try again"
	}
	return "Two-factor authentication enabled. Store your backup codes somewhere safe, they are shown only once."
}

type DisableResponse struct{}

func (DisableResponse) StatusCode() int { return http.StatusNoContent }

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

func (BackupCodesResponse) Message() string {
	return "Backup codes regenerated. Previous codes no longer work."
}

type TrustedDeviceResponse struct {
	ID        int64               `json:"id,string"`
	Label     string              `json:"label"`
	Metadata  valueobject.JSONMap `json:"metadata" swaggertype:"object"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
	Expired   bool                `json:"expired"`
}

type TrustedDeviceListResponse []TrustedDeviceResponse

func (r TrustedDeviceListResponse) Meta() map[string]any {
	return map[string]any{"total": len(r)}
}

type RevokeTrustedDeviceResponse struct{}

func (RevokeTrustedDeviceResponse) StatusCode() int { return http.StatusNoContent }

type AdminResetResponse struct{}

func (AdminResetResponse) StatusCode() int { return http.StatusNoContent }

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type LoginSessionResponse struct {
	SessionID         string    `json:"session_id,omitempty"`
	State             string    `json:"state"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type BeginLoginRequest struct {
	UserID int64 `json:"user_id,string"`
}

type BeginLoginResponse struct {
	LoginSessionResponse
}

func (BeginLoginResponse) StatusCode() int { return http.StatusCreated }

type SubmitCodeRequest struct {
	SessionID      string `json:"session_id"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device"`
	DeviceLabel    string `json:"device_label"`
}

type SubmitCodeResponse struct {
	Verified    bool   `json:"verified"`
	UserID      int64  `json:"user_id,string"`
	DeviceID    int64  `json:"device_id,omitempty,string"`
	DeviceToken string `json:"device_token,omitempty"`
}

type TrustedDeviceLoginRequest struct {
	SessionID   string `json:"session_id"`
	DeviceToken string `json:"device_token"`
}

type CancelLoginResponse struct{}

func (CancelLoginResponse) StatusCode() int { return http.StatusNoContent }
