package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Exec(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	require.NoError(t, m.Exec(ctx, "k", fn, WithStateTTL(time.Minute)))
	assert.ErrorIs(t, m.Exec(ctx, "k", fn), ErrAlreadyCompleted)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Minute)
	require.NoError(t, m.Exec(ctx, "k", fn))
	assert.Equal(t, 2, calls)
}

func TestMemory_ExecFailure(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Exec(ctx, "k", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	calls := 0
	err = m.Exec(ctx, "k", func(context.Context) error { calls++; return nil })
	require.NoError(t, err, "a failed run releases its key")
	assert.Equal(t, 1, calls)
}

func TestMemory_InProgress(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	ctx := context.Background()

	st, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateNone, st)

	err = m.Exec(ctx, "k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
}

func TestMemory_LockExpires(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	_, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	st, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateNone, st, "a crashed run does not block the key forever")
}

func TestParseState(t *testing.T) {
	t.Parallel()

	st, err := parseState("")
	require.NoError(t, err)
	assert.Equal(t, StateNone, st)

	st, err = parseState("completed")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st)

	_, err = parseState("failed")
	assert.ErrorIs(t, err, ErrInvalidState)
}
