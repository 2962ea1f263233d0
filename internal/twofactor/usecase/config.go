package usecase

import "time"

const (
	defaultIssuer            = "twofa"
	defaultBackupCodeCount   = 10
	defaultEnrollmentTTL     = 10 * time.Minute
	defaultSessionTTL        = 5 * time.Minute
	defaultMaxAttempts       = 5
	defaultTrustedDeviceTTL  = 30 * 24 * time.Hour
	defaultIdempotencyWindow = 10 * time.Minute
)

// Tunables are read on every call so a config reload applies to the next
// request.

func (s *Usecase) issuer() string {
	if v := s.cfg.GetString("twofactor.issuer"); v != "" {
		return v
	}
	return defaultIssuer
}

func (s *Usecase) backupCodeCount() int {
	return positiveOr(s.cfg.GetInt("twofactor.backup_codes.count"), defaultBackupCodeCount)
}

func (s *Usecase) enrollmentTTL() time.Duration {
	return positiveOr(s.cfg.GetMinute("twofactor.enrollment.ttl_minutes"), defaultEnrollmentTTL)
}

func (s *Usecase) sessionTTL() time.Duration {
	return positiveOr(s.cfg.GetSecond("twofactor.session.ttl_seconds"), defaultSessionTTL)
}

func (s *Usecase) maxAttempts() int {
	return positiveOr(s.cfg.GetInt("twofactor.session.max_attempts"), defaultMaxAttempts)
}

func (s *Usecase) trustedDeviceTTL() time.Duration {
	return positiveOr(s.cfg.GetDay("twofactor.trusted_device.ttl_days"), defaultTrustedDeviceTTL)
}

func (s *Usecase) idempotencyWindow() time.Duration {
	return positiveOr(s.cfg.GetMinute("twofactor.idempotency.ttl_minutes"), defaultIdempotencyWindow)
}

// disableClearsTrustedDevices defaults to true when the key is absent.
func (s *Usecase) disableClearsTrustedDevices() bool {
	if s.cfg.GetString("twofactor.disable_clears_trusted_devices") == "" {
		return true
	}
	return s.cfg.GetBool("twofactor.disable_clears_trusted_devices")
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
