package twofactor

import (
	"context"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/twofa/internal/pkg/clock"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/hash"
	"github.com/shandysiswandi/twofa/internal/pkg/idempotency"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/messaging"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/pkg/router"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/pkg/validator"
	"github.com/shandysiswandi/twofa/internal/twofactor/inbound"
	"github.com/shandysiswandi/twofa/internal/twofactor/outbound/cache"
	"github.com/shandysiswandi/twofa/internal/twofactor/outbound/db"
	"github.com/shandysiswandi/twofa/internal/twofactor/outbound/mq"
	"github.com/shandysiswandi/twofa/internal/twofactor/usecase"
)

// Dependency is everything the module borrows from the app. Ctx bounds
// the event consumers; without it none are started.
type Dependency struct {
	Ctx context.Context

	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	Router      *router.Router             `validate:"required"`
	DBConn      *pgxpool.Pool              `validate:"required"`
	CacheConn   *redis.Client              `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	Enforcer    *casbin.Enforcer           `validate:"required"`
	Goroutine   *goroutine.Manager         `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	UUID        uid.StringID               `validate:"required"`

	HMAC            *hash.HMACSHA256          `validate:"required"`
	Totp            *otp.Verifier             `validate:"required"`
	MFAEncryptor    mfa.Encryptor             `validate:"required"`
	MFARecoveryCode mfa.RecoveryCodeGenerator `validate:"required"`
	Token           mfa.TokenGenerator        `validate:"required"`
}

// New builds the stores and the usecase, mounts the HTTP endpoints and starts
// the consumers.
func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	ctx := dep.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	store := db.NewDB(dep.DBConn, dep.Instrument)
	if dep.Config.GetBool("database.auto_migrate") {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	sessions := cache.New(dep.CacheConn, dep.Instrument,
		cache.WithLockTTL(dep.Config.GetSecond("twofactor.session.lock_ttl_seconds")),
	)

	uc := usecase.New(usecase.Dependency{
		RepoDB:          store,
		RepoCache:       sessions,
		RepoMessaging:   mq.NewMessaging(dep.Messaging, dep.Instrument),
		Idempotency:     dep.Idempotency,
		Validator:       dep.Validator,
		Config:          dep.Config,
		BackupCodeHash:  dep.HMAC.Derive("backup_code"),
		DeviceTokenHash: dep.HMAC.Derive("trusted_device"),
		MFAEncryptor:    dep.MFAEncryptor,
		MFARecoveryCode: dep.MFARecoveryCode,
		Token:           dep.Token,
		Totp:            dep.Totp,
		UID:             dep.UID,
		Clock:           dep.Clock,
		Instrument:      dep.Instrument,
		Enforcer:        dep.Enforcer,
		Goroutine:       dep.Goroutine,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}
	return nil
}
