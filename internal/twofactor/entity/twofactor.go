package entity

import (
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/valueobject"
)

// Config is the per-user two-factor record. It exists only once the user has
// proven possession of the seed; it is enabled iff EnabledAt is set.
type Config struct {
	UserID           int64
	Method           Method
	SecretCiphertext []byte
	EnabledAt        *time.Time
	LastUsedAt       *time.Time
	LastUsedCounter  int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (c *Config) IsEnabled() bool {
	return c != nil && c.EnabledAt != nil
}

type BackupCode struct {
	ID       int64
	UserID   int64
	CodeHash string
	Used     bool
	UsedAt   *time.Time
}

type TrustedDevice struct {
	ID        int64
	UserID    int64
	TokenHash string
	Label     string
	Metadata  valueobject.JSONMap
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsValidAt reports whether the trust grant still bypasses the second factor.
func (d *TrustedDevice) IsValidAt(now time.Time) bool {
	return now.Before(d.ExpiresAt)
}

// EnrollmentCandidate is a seed handed to the user but not yet confirmed.
type EnrollmentCandidate struct {
	UserID           int64
	SecretCiphertext []byte
	AccountName      string
	ExpiresAt        time.Time
}

// Status summarises a user's two-factor setup.
type Status struct {
	Enabled              bool
	Method               Method
	EnabledAt            *time.Time
	LastUsedAt           *time.Time
	RemainingBackupCodes int
	TrustedDevices       int
}
