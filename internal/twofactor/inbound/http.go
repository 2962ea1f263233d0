package inbound

import (
	"context"

	"github.com/shandysiswandi/twofa/internal/pkg/router"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
)

type uc interface {
	Status(ctx context.Context, in usecase.StatusInput) (*entity.Status, error)

	BeginEnrollment(ctx context.Context, in usecase.BeginEnrollmentInput) (*usecase.BeginEnrollmentOutput, error)
	ConfirmEnrollment(ctx context.Context, in usecase.ConfirmEnrollmentInput) (*usecase.ConfirmEnrollmentOutput, error)
	Disable(ctx context.Context, in usecase.DisableInput) error
	AdminReset(ctx context.Context, in usecase.AdminResetInput) error
	PurgeUser(ctx context.Context, in usecase.PurgeUserInput) error

	RegenerateBackupCodes(ctx context.Context, in usecase.RegenerateBackupCodesInput) (*usecase.RegenerateBackupCodesOutput, error)

	ListTrustedDevices(ctx context.Context, in usecase.ListTrustedDevicesInput) ([]usecase.TrustedDeviceView, error)
	RevokeTrustedDevice(ctx context.Context, in usecase.RevokeTrustedDeviceInput) error

	AuthorizedBeginLogin(ctx context.Context, in usecase.BeginLoginInput) (*usecase.LoginSession, error)
	GetLoginSession(ctx context.Context, in usecase.SessionInput) (*usecase.LoginSession, error)
	SubmitCode(ctx context.Context, in usecase.SubmitCodeInput) (*usecase.SubmitCodeOutput, error)
	SwitchToBackupMode(ctx context.Context, in usecase.SessionInput) (*usecase.LoginSession, error)
	SwitchToCodeMode(ctx context.Context, in usecase.SessionInput) (*usecase.LoginSession, error)
	BypassViaTrustedDevice(ctx context.Context, in usecase.BypassViaTrustedDeviceInput) (*usecase.BypassViaTrustedDeviceOutput, error)
	CancelLogin(ctx context.Context, in usecase.SessionInput) error
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Settings of the authenticated user
	r.GET("/api/v1/2fa/status", end.Status)
	r.POST("/api/v1/2fa/enrollment", end.BeginEnrollment)
	r.POST("/api/v1/2fa/enrollment/confirm", end.ConfirmEnrollment)
	r.POST("/api/v1/2fa/disable", end.Disable)
	r.POST("/api/v1/2fa/backup-codes", end.RegenerateBackupCodes)
	r.GET("/api/v1/2fa/trusted-devices", end.ListTrustedDevices)
	r.DELETE("/api/v1/2fa/trusted-devices/:id", end.RevokeTrustedDevice)

	// Support desk (need authorization)
	r.POST("/api/v1/2fa/admin/users/:id/reset", end.AdminReset)

	// Login second step, the session id is the credential
	anon := r.Anonymous()
	anon.POST("/api/v1/2fa/login/session", end.GetLoginSession)
	anon.POST("/api/v1/2fa/login/code", end.SubmitCode)
	anon.POST("/api/v1/2fa/login/backup-mode", end.SwitchToBackupMode)
	anon.POST("/api/v1/2fa/login/code-mode", end.SwitchToCodeMode)
	anon.POST("/api/v1/2fa/login/trusted-device", end.BypassViaTrustedDevice)
	anon.POST("/api/v1/2fa/login/cancel", end.CancelLogin)

	// Called by the primary login service (need authorization)
	r.POST("/internal/v1/2fa/login", end.BeginLogin)
}
