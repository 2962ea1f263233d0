package app

import (
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/twofa/internal/twofactor"
)

func (a *App) initModules() error {
	if !a.config.GetBool("modules.twofactor.enabled") {
		slog.Warn("module twofactor is disabled")
		return nil
	}

	err := twofactor.New(twofactor.Dependency{
		Ctx:             a.ctx,
		Config:          a.config,
		Instrument:      a.ins,
		Router:          a.router,
		DBConn:          a.dbConn,
		CacheConn:       a.cacheConn,
		Messaging:       a.messaging,
		Idempotency:     a.idemp,
		Enforcer:        a.casbin,
		Goroutine:       a.goroutine,
		Validator:       a.validator,
		Clock:           a.clock,
		UID:             a.uid,
		UUID:            a.uuid,
		HMAC:            a.hmac,
		Totp:            a.totp,
		MFAEncryptor:    a.mfaEncryptor,
		MFARecoveryCode: a.mfaRecoveryCode,
		Token:           a.token,
	})
	if err != nil {
		return fmt.Errorf("twofactor: %w", err)
	}
	return nil
}
