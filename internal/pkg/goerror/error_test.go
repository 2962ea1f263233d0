package goerror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_StatusCode(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("session closed")

	tests := []struct {
		name     string
		err      error
		wantType Type
		wantCode Code
		wantHTTP int
	}{
		{name: "server", err: NewServer(errors.New("db down")), wantType: TypeServer, wantCode: CodeInternal, wantHTTP: http.StatusInternalServerError},
		{name: "business", err: NewBusiness("already enabled", CodeConflict), wantType: TypeBusiness, wantCode: CodeConflict, wantHTTP: http.StatusConflict},
		{name: "business with sentinel", err: NewBusinessErr(sentinel, "Session is closed", CodeGone), wantType: TypeBusiness, wantCode: CodeGone, wantHTTP: http.StatusGone},
		{name: "invalid input", err: NewInvalidInput(nil, "code", "must be 6 digits"), wantType: TypeValidation, wantCode: CodeInvalidInput, wantHTTP: http.StatusUnprocessableEntity},
		{name: "invalid format", err: NewInvalidFormat(), wantType: TypeValidation, wantCode: CodeInvalidFormat, wantHTTP: http.StatusBadRequest},
		{name: "too many", err: NewBusiness("slow down", CodeTooManyRequest), wantType: TypeBusiness, wantCode: CodeTooManyRequest, wantHTTP: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gerr *Error
			require.ErrorAs(t, tt.err, &gerr)
			assert.Equal(t, tt.wantType, gerr.Type())
			assert.Equal(t, tt.wantCode, gerr.Code())
			assert.Equal(t, tt.wantHTTP, gerr.StatusCode())
		})
	}
}

func TestNewBusinessErr_Unwraps(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("session expired")
	err := fmt.Errorf("submit: %w", NewBusinessErr(sentinel, "Session has expired", CodeGone))

	assert.ErrorIs(t, err, sentinel)

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "Session has expired", gerr.Msg())
	assert.Equal(t, "ERROR_CODE_GONE", gerr.Code().String())
}

func TestNewInvalidInput_Fields(t *testing.T) {
	t.Parallel()

	var gerr *Error
	require.ErrorAs(t, NewInvalidInput(nil, "code", "invalid", "odd"), &gerr)
	assert.Equal(t, CodeInvalidFormat, gerr.Code())

	require.ErrorAs(t, NewInvalidInput(nil, "code", "invalid"), &gerr)
	assert.Equal(t, map[string]string{"code": "invalid"}, gerr.Fields())
}

func TestWithFields(t *testing.T) {
	t.Parallel()

	base := NewBusiness("Invalid code, please try again", CodeUnauthorized)
	err := WithFields(base, "attempts_remaining", "3")

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, map[string]string{"attempts_remaining": "3"}, gerr.Fields())
	assert.Equal(t, http.StatusUnauthorized, gerr.StatusCode())

	var orig *Error
	require.ErrorAs(t, base, &orig)
	assert.Empty(t, orig.Fields())

	plain := errors.New("plain")
	assert.Same(t, plain, WithFields(plain, "k", "v"))
	assert.Same(t, base, WithFields(base, "odd"))
}

func TestError_Strings(t *testing.T) {
	t.Parallel()

	var gerr *Error
	require.ErrorAs(t, NewBusiness("", Code(99)), &gerr)
	assert.Equal(t, http.StatusInternalServerError, gerr.StatusCode())
	assert.Equal(t, "ERROR_CODE_INTERNAL", gerr.Code().String())
	assert.Equal(t, "ERROR_TYPE_BUSINESS", gerr.Error())

	require.ErrorAs(t, NewServer(errors.New("pool closed")), &gerr)
	assert.Equal(t, "pool closed", gerr.Error())
	assert.Equal(t, "Internal server error", gerr.Msg())
	assert.Equal(t, "ERROR_TYPE_SERVER ERROR_CODE_INTERNAL: Internal server error (pool closed)", gerr.String())
}
