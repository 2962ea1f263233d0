package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/shandysiswandi/twofa/internal/pkg/clock"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/hash"
	"github.com/shandysiswandi/twofa/internal/pkg/idempotency"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/jwt"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/pkg/validator"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

type EventType string

const (
	EventEnabled                EventType = "enabled"
	EventDisabled               EventType = "disabled"
	EventLoginVerified          EventType = "login_verified"
	EventLoginFailed            EventType = "login_failed"
	EventLoginLocked            EventType = "login_locked"
	EventBackupCodeUsed         EventType = "backup_code_used"
	EventBackupCodesRegenerated EventType = "backup_codes_regenerated"
	EventTrustedDeviceAdded     EventType = "trusted_device_added"
	EventTrustedDeviceRevoked   EventType = "trusted_device_revoked"
)

type Event struct {
	Type       EventType
	UserID     int64
	ActorID    int64
	DeviceID   int64
	Method     string
	OccurredAt time.Time
}

type repoMessaging interface {
	PublishTwoFactorEvent(ctx context.Context, ev Event) error
}

type repoDB interface {
	GetConfig(ctx context.Context, userID int64) (*entity.Config, error)
	GetTrustedDeviceByTokenHash(ctx context.Context, userID int64, tokenHash string) (*entity.TrustedDevice, error)
	ListTrustedDevices(ctx context.Context, userID int64) ([]entity.TrustedDevice, error)
	CountUnusedBackupCodes(ctx context.Context, userID int64) (int, error)

	EnableConfig(ctx context.Context, cfg entity.Config, codes []entity.BackupCode) error
	AdvanceTOTPCounter(ctx context.Context, userID, counter int64, at time.Time) (bool, error)
	TouchLastUsed(ctx context.Context, userID int64, at time.Time) error
	ReplaceBackupCodes(ctx context.Context, userID int64, codes []entity.BackupCode) error
	ConsumeBackupCode(ctx context.Context, userID int64, codeHash string, at time.Time) (entity.ConsumeResult, error)
	CreateTrustedDevice(ctx context.Context, device entity.TrustedDevice) error

	DeleteConfig(ctx context.Context, userID int64, clearDevices bool) error
	DeleteTrustedDevice(ctx context.Context, userID, deviceID int64) (bool, error)
	DeleteUserData(ctx context.Context, userID int64) error
}

type repoCache interface {
	SaveEnrollment(ctx context.Context, c entity.EnrollmentCandidate, ttl time.Duration) error
	GetEnrollment(ctx context.Context, userID int64) (*entity.EnrollmentCandidate, error)
	DeleteEnrollment(ctx context.Context, userID int64) error

	SaveSession(ctx context.Context, sess entity.PendingAuthSession, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*entity.PendingAuthSession, error)
	DeleteSession(ctx context.Context, id string) error
	WithSessionLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
}

type codeVerifier interface {
	Match(secret []byte, code string, at time.Time) (counter uint64, ok bool)
}

type Usecase struct {
	repoDB          repoDB
	repoCache       repoCache
	repoMessaging   repoMessaging
	idemp           idempotency.Idempotency
	validator       validator.Validator
	cfg             config.Config
	backupHash      hash.Hash
	deviceHash      hash.Hash
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	token           mfa.TokenGenerator
	totp            codeVerifier
	uid             uid.NumberID
	clock           clock.Clocker
	ins             instrument.Instrumentation
	enforcer        *casbin.Enforcer
	goroutine       *goroutine.Manager

	verifications metric.Int64Counter
	lockouts      metric.Int64Counter
	consumptions  metric.Int64Counter
}

type Dependency struct {
	RepoDB          repoDB
	RepoCache       repoCache
	RepoMessaging   repoMessaging
	Idempotency     idempotency.Idempotency
	Validator       validator.Validator
	Config          config.Config
	BackupCodeHash  hash.Hash
	DeviceTokenHash hash.Hash
	MFAEncryptor    mfa.Encryptor
	MFARecoveryCode mfa.RecoveryCodeGenerator
	Token           mfa.TokenGenerator
	Totp            codeVerifier
	UID             uid.NumberID
	Clock           clock.Clocker
	Instrument      instrument.Instrumentation
	Enforcer        *casbin.Enforcer
	Goroutine       *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	s := &Usecase{
		repoDB:          dep.RepoDB,
		repoCache:       dep.RepoCache,
		repoMessaging:   dep.RepoMessaging,
		idemp:           dep.Idempotency,
		validator:       dep.Validator,
		cfg:             dep.Config,
		backupHash:      dep.BackupCodeHash,
		deviceHash:      dep.DeviceTokenHash,
		mfaEncryptor:    dep.MFAEncryptor,
		mfaRecoveryCode: dep.MFARecoveryCode,
		token:           dep.Token,
		totp:            dep.Totp,
		uid:             dep.UID,
		clock:           dep.Clock,
		ins:             dep.Instrument,
		enforcer:        dep.Enforcer,
		goroutine:       dep.Goroutine,
	}

	meter := s.ins.Meter("twofactor.usecase")
	s.verifications = counter(meter, "twofactor.verification", "Second factor verification attempts by method and outcome")
	s.lockouts = counter(meter, "twofactor.lockout", "Login sessions locked after too many wrong codes")
	s.consumptions = counter(meter, "twofactor.backup_code.consume", "Backup code consumption attempts by result")

	return s
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		slog.Warn("failed to create counter, falling back to noop", "name", name, "error", err)
		return metricnoop.Int64Counter{}
	}
	return c
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("twofactor.usecase").Start(ctx, name)
}

// publish emits ev in the background. Delivery problems never fail the
// operation that produced the event.
func (s *Usecase) publish(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}

	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.repoMessaging.PublishTwoFactorEvent(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to publish twofactor event", "type", string(ev.Type), "user_id", ev.UserID, "error", err)
		}
		return nil
	})
}

func (s *Usecase) authorize(ctx context.Context, obj, act string) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("Authentication required", goerror.CodeUnauthorized)
	}

	ok, err := s.enforcer.Enforce(clm.Subject, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check authorization", "user_id", clm.Subject, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !ok {
		return nil, goerror.NewBusiness("Account not allowed", goerror.CodeForbidden)
	}

	return clm, nil
}
