package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnforcer(t *testing.T) {
	t.Parallel()

	e, err := NewEnforcer(
		[]string{"support, twofactor, reset", "login-service, twofactor.login, begin", "root, *, *"},
		map[string]string{"7": "support", "9": "login-service", "1": "root"},
	)
	require.NoError(t, err)

	tests := []struct {
		sub, obj, act string
		want          bool
	}{
		{"7", "twofactor", "reset", true},
		{"7", "twofactor.login", "begin", false},
		{"9", "twofactor.login", "begin", true},
		{"9", "twofactor", "reset", false},
		{"1", "twofactor", "reset", true},
		{"42", "twofactor", "reset", false},
	}

	for _, tt := range tests {
		ok, err := e.Enforce(tt.sub, tt.obj, tt.act)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "%s %s %s", tt.sub, tt.obj, tt.act)
	}
}

func TestNewEnforcer_MalformedPolicy(t *testing.T) {
	t.Parallel()

	_, err := NewEnforcer([]string{"support, twofactor"}, nil)
	require.ErrorIs(t, err, ErrMalformedPolicy)

	_, err = NewEnforcer([]string{"support, , reset"}, nil)
	require.ErrorIs(t, err, ErrMalformedPolicy)
}

func TestNewEnforcer_Empty(t *testing.T) {
	t.Parallel()

	e, err := NewEnforcer(nil, nil)
	require.NoError(t, err)

	ok, err := e.Enforce("1", "twofactor", "reset")
	require.NoError(t, err)
	assert.False(t, ok)
}
