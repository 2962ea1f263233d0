package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

func enabledConfig(userID int64) entity.Config {
	at := t0
	return entity.Config{UserID: userID, Method: entity.MethodTOTP, SecretCiphertext: []byte("ct"), EnabledAt: &at, LastUsedCounter: 10}
}

func TestStore_EnableConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.EnableConfig(ctx, enabledConfig(1), []entity.BackupCode{{ID: 1, UserID: 1, CodeHash: "a"}}))
	assert.ErrorIs(t, s.EnableConfig(ctx, enabledConfig(1), nil), goerror.ErrConflict)

	cfg, err := s.GetConfig(ctx, 1)
	require.NoError(t, err)
	cfg.SecretCiphertext[0] = 'X'

	again, err := s.GetConfig(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ct"), again.SecretCiphertext, "returned records are copies")

	_, err = s.GetConfig(ctx, 2)
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestStore_AdvanceTOTPCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.EnableConfig(ctx, enabledConfig(1), nil))

	ok, err := s.AdvanceTOTPCounter(ctx, 1, 10, t0)
	require.NoError(t, err)
	assert.False(t, ok, "equal counter is a replay")

	ok, err = s.AdvanceTOTPCounter(ctx, 1, 11, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AdvanceTOTPCounter(ctx, 1, 11, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AdvanceTOTPCounter(ctx, 2, 99, t0)
	require.NoError(t, err)
	assert.False(t, ok, "no config")
}

func TestStore_ConsumeBackupCode_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.EnableConfig(ctx, enabledConfig(1), []entity.BackupCode{{ID: 1, UserID: 1, CodeHash: "h"}}))

	const n = 32
	results := make(chan entity.ConsumeResult, n)
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			res, err := s.ConsumeBackupCode(ctx, 1, "h", t0)
			assert.NoError(t, err)
			results <- res
		})
	}
	wg.Wait()
	close(results)

	counts := map[entity.ConsumeResult]int{}
	for r := range results {
		counts[r]++
	}
	assert.Equal(t, 1, counts[entity.Consumed])
	assert.Equal(t, n-1, counts[entity.ConsumeAlreadyUsed])

	res, err := s.ConsumeBackupCode(ctx, 1, "other", t0)
	require.NoError(t, err)
	assert.Equal(t, entity.ConsumeNotFound, res)

	left, err := s.CountUnusedBackupCodes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

func TestStore_TrustedDevices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.CreateTrustedDevice(ctx, entity.TrustedDevice{ID: 1, UserID: 1, TokenHash: "x", ExpiresAt: t0}))
	require.NoError(t, s.CreateTrustedDevice(ctx, entity.TrustedDevice{ID: 2, UserID: 2, TokenHash: "y", ExpiresAt: t0}))
	assert.ErrorIs(t, s.CreateTrustedDevice(ctx, entity.TrustedDevice{ID: 3, UserID: 1, TokenHash: "x"}), goerror.ErrConflict)

	_, err := s.GetTrustedDeviceByTokenHash(ctx, 2, "x")
	assert.ErrorIs(t, err, goerror.ErrNotFound, "scoped by user")

	d, err := s.GetTrustedDeviceByTokenHash(ctx, 1, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ID)

	deleted, err := s.DeleteTrustedDevice(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, deleted, "other user's device")

	deleted, err = s.DeleteTrustedDevice(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteTrustedDevice(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_DeleteConfig(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.EnableConfig(ctx, enabledConfig(1), []entity.BackupCode{{ID: 1, UserID: 1, CodeHash: "h"}}))
	require.NoError(t, s.CreateTrustedDevice(ctx, entity.TrustedDevice{ID: 1, UserID: 1, TokenHash: "x"}))

	require.NoError(t, s.DeleteConfig(ctx, 1, false))
	devices, err := s.ListTrustedDevices(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	require.NoError(t, s.DeleteUserData(ctx, 1))
	devices, err = s.ListTrustedDevices(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestStore_SessionExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := t0
	s := New(func() time.Time { return now })

	sess := entity.NewPendingAuthSession("sid", 1, now, time.Minute, 5)
	require.NoError(t, s.SaveSession(ctx, *sess, 2*time.Minute))

	got, err := s.GetSession(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, *sess, *got)

	now = now.Add(2 * time.Minute)
	_, err = s.GetSession(ctx, "sid")
	assert.ErrorIs(t, err, goerror.ErrNotFound)
}

func TestStore_WithSessionLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(nil)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 16 {
		wg.Go(func() {
			_ = s.WithSessionLock(ctx, "sid", func(context.Context) error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		})
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, s.locks.locks, "idle locks are released")
}
