// Package memory is a process-local test double of the twofactor persistence
// and session ports, used by the usecase tests. The service itself always
// runs on outbound/db and outbound/cache.
package memory

import (
	"bytes"
	"context"
	"maps"
	"sync"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

type expiring[T any] struct {
	val       T
	expiresAt time.Time
}

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	configs     map[int64]entity.Config
	codes       map[int64][]entity.BackupCode
	devices     map[int64]entity.TrustedDevice
	enrollments map[int64]expiring[entity.EnrollmentCandidate]
	sessions    map[string]expiring[entity.PendingAuthSession]
	locks       *keyedMutex
}

// New returns an empty store. now drives cache expiry; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:         now,
		configs:     make(map[int64]entity.Config),
		codes:       make(map[int64][]entity.BackupCode),
		devices:     make(map[int64]entity.TrustedDevice),
		enrollments: make(map[int64]expiring[entity.EnrollmentCandidate]),
		sessions:    make(map[string]expiring[entity.PendingAuthSession]),
		locks:       newKeyedMutex(),
	}
}

func cloneConfig(c entity.Config) *entity.Config {
	c.SecretCiphertext = bytes.Clone(c.SecretCiphertext)
	return &c
}

func cloneDevice(d entity.TrustedDevice) entity.TrustedDevice {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

func (s *Store) GetConfig(_ context.Context, userID int64) (*entity.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[userID]
	if !ok {
		return nil, goerror.ErrNotFound
	}
	return cloneConfig(c), nil
}

func (s *Store) EnableConfig(_ context.Context, cfg entity.Config, codes []entity.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.configs[cfg.UserID]; ok && cur.IsEnabled() {
		return goerror.ErrConflict
	}

	s.configs[cfg.UserID] = *cloneConfig(cfg)
	s.codes[cfg.UserID] = freshCodes(codes)
	return nil
}

func (s *Store) AdvanceTOTPCounter(_ context.Context, userID, counter int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configs[userID]
	if !ok || c.LastUsedCounter >= counter {
		return false, nil
	}

	c.LastUsedCounter = counter
	c.LastUsedAt = &at
	c.UpdatedAt = at
	s.configs[userID] = c
	return true, nil
}

func (s *Store) TouchLastUsed(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.configs[userID]; ok {
		c.LastUsedAt = &at
		c.UpdatedAt = at
		s.configs[userID] = c
	}
	return nil
}

func (s *Store) DeleteConfig(_ context.Context, userID int64, clearDevices bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.configs, userID)
	delete(s.codes, userID)
	if clearDevices {
		s.deleteDevicesLocked(userID)
	}
	return nil
}

func (s *Store) DeleteUserData(ctx context.Context, userID int64) error {
	return s.DeleteConfig(ctx, userID, true)
}

func freshCodes(codes []entity.BackupCode) []entity.BackupCode {
	out := make([]entity.BackupCode, len(codes))
	for i, c := range codes {
		c.Used = false
		c.UsedAt = nil
		out[i] = c
	}
	return out
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID int64, codes []entity.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[userID] = freshCodes(codes)
	return nil
}

// ConsumeBackupCode checks and burns under one lock, mirroring the
// conditional UPDATE of the SQL store.
func (s *Store) ConsumeBackupCode(_ context.Context, userID int64, codeHash string, at time.Time) (entity.ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.codes[userID]
	for i := range codes {
		if codes[i].CodeHash != codeHash {
			continue
		}
		if codes[i].Used {
			return entity.ConsumeAlreadyUsed, nil
		}
		codes[i].Used = true
		codes[i].UsedAt = &at
		return entity.Consumed, nil
	}
	return entity.ConsumeNotFound, nil
}

func (s *Store) CountUnusedBackupCodes(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.codes[userID] {
		if !c.Used {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateTrustedDevice(_ context.Context, device entity.TrustedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.TokenHash == device.TokenHash {
			return goerror.ErrConflict
		}
	}
	s.devices[device.ID] = cloneDevice(device)
	return nil
}

func (s *Store) GetTrustedDeviceByTokenHash(_ context.Context, userID int64, tokenHash string) (*entity.TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.UserID == userID && d.TokenHash == tokenHash {
			out := cloneDevice(d)
			return &out, nil
		}
	}
	return nil, goerror.ErrNotFound
}

func (s *Store) ListTrustedDevices(_ context.Context, userID int64) ([]entity.TrustedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.TrustedDevice, 0)
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, cloneDevice(d))
		}
	}
	return out, nil
}

func (s *Store) DeleteTrustedDevice(_ context.Context, userID, deviceID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		return false, nil
	}
	delete(s.devices, deviceID)
	return true, nil
}

func (s *Store) deleteDevicesLocked(userID int64) {
	for id, d := range s.devices {
		if d.UserID == userID {
			delete(s.devices, id)
		}
	}
}
