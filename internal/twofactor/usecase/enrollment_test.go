package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reBackupCode = regexp.MustCompile(`^\d{4}-\d{4}$`)

func TestBeginEnrollment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	out, err := f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "  alice@example.com "})
	require.NoError(t, err)

	secret, err := otp.DecodeSecret(out.Secret.Reveal())
	require.NoError(t, err)
	assert.Len(t, secret, otp.SecretSize)
	assert.Equal(t, otp.ProvisioningURI(secret, "alice@example.com", "Acme"), out.ProvisioningURI.Reveal())
	assert.Equal(t, start.Add(10*time.Minute), out.ExpiresAt)
	assert.Equal(t, "[REDACTED]", out.Secret.String())

	st, err := f.uc.Status(ctx, StatusInput{UserID: 1})
	require.NoError(t, err)
	assert.False(t, st.Enabled, "a candidate is not an enabled config")

	_, err = f.uc.BeginLogin(ctx, BeginLoginInput{UserID: 1})
	assert.ErrorIs(t, err, entity.ErrNotEnabled)
}

func TestBeginEnrollment_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.uc.BeginEnrollment(context.Background(), BeginEnrollmentInput{UserID: 0, AccountName: "a"})
	requireValidation(t, err)

	_, err = f.uc.BeginEnrollment(context.Background(), BeginEnrollmentInput{UserID: 1, AccountName: "   "})
	requireValidation(t, err)
}

func TestConfirmEnrollment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	secret, codes := f.enable(t, 1)
	require.Len(t, codes, 10)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, reBackupCode, c)
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}

	st, err := f.uc.Status(ctx, StatusInput{UserID: 1})
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, entity.MethodTOTP, st.Method)
	assert.Equal(t, 10, st.RemainingBackupCodes)
	require.NotNil(t, st.EnabledAt)
	assert.Equal(t, start, *st.EnabledAt)

	_, err = f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "alice"})
	assert.ErrorIs(t, err, entity.ErrAlreadyEnabled)
	requireCode(t, err, goerror.CodeConflict)

	_, err = f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: 1, Code: f.code(t, secret)})
	assert.ErrorIs(t, err, entity.ErrAlreadyEnabled)

	assert.Equal(t, []EventType{EventEnabled}, f.events(t))
}

func TestConfirmEnrollment_EachBackupCodeWorksOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, codes := f.enable(t, 1)

	for _, c := range codes {
		sid := f.beginLogin(t, 1)
		_, err := f.uc.SwitchToBackupMode(ctx, SessionInput{SessionID: sid})
		require.NoError(t, err)

		out, err := f.uc.SubmitCode(ctx, SubmitCodeInput{SessionID: sid, Code: c})
		require.NoError(t, err)
		assert.Equal(t, entity.OutcomeVerified, out.Outcome, c)
	}

	sid := f.beginLogin(t, 1)
	_, err := f.uc.SwitchToBackupMode(ctx, SessionInput{SessionID: sid})
	require.NoError(t, err)

	out, err := f.uc.SubmitCode(ctx, SubmitCodeInput{SessionID: sid, Code: codes[0]})
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeInvalidCode, out.Outcome)

	st, err := f.uc.Status(ctx, StatusInput{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, st.RemainingBackupCodes)
}

func TestConfirmEnrollment_WrongCodeKeepsCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "alice"})
	require.NoError(t, err)
	secret, err := otp.DecodeSecret(begin.Secret.Reveal())
	require.NoError(t, err)

	out, err := f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: 1, Code: f.wrongCode(t, secret)})
	require.NoError(t, err)
	assert.False(t, out.Enabled)
	assert.Empty(t, out.BackupCodes)

	out, err = f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: 1, Code: f.code(t, secret)})
	require.NoError(t, err)
	assert.True(t, out.Enabled)
}

func TestConfirmEnrollment_Errors(t *testing.T) {
	t.Parallel()

	t.Run("malformed code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.uc.ConfirmEnrollment(context.Background(), ConfirmEnrollmentInput{UserID: 1, Code: "12ab56"})
		requireValidation(t, err)
	})

	t.Run("no candidate", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.uc.ConfirmEnrollment(context.Background(), ConfirmEnrollmentInput{UserID: 1, Code: "123456"})
		assert.ErrorIs(t, err, entity.ErrNoPendingEnroll)
		requireCode(t, err, goerror.CodeNotFound)
	})

	t.Run("candidate expired", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		begin, err := f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "alice"})
		require.NoError(t, err)
		secret, err := otp.DecodeSecret(begin.Secret.Reveal())
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		_, err = f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: 1, Code: f.code(t, secret)})
		assert.ErrorIs(t, err, entity.ErrNoPendingEnroll)
	})

	t.Run("new candidate replaces old", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		first, err := f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "alice"})
		require.NoError(t, err)
		_, err = f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: 1, AccountName: "alice"})
		require.NoError(t, err)

		old, err := otp.DecodeSecret(first.Secret.Reveal())
		require.NoError(t, err)

		out, err := f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: 1, Code: f.code(t, old)})
		require.NoError(t, err)
		assert.False(t, out.Enabled)
	})
}

func TestConfirmEnrollment_BackupHashCollisionRedraws(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	gen := &scriptedCodes{sets: [][]string{
		{"1111-1111", "1111 1111"},
		{"2222-2222", "3333-3333"},
	}}
	f.uc.mfaRecoveryCode = gen
	f.uc.cfg = mustConfig(t, "twofactor:\n  backup_codes:\n    count: 2\n")

	plain, codes, err := f.uc.newBackupCodeSet(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2222-2222", "3333-3333"}, plain)
	assert.Len(t, codes, 2)
	assert.Equal(t, 2, gen.calls)

	gen = &scriptedCodes{sets: [][]string{{"1-1", "11"}, {"1-1", "11"}, {"1-1", "11"}}}
	f.uc.mfaRecoveryCode = gen
	_, _, err = f.uc.newBackupCodeSet(context.Background(), 1)
	assert.True(t, errors.Is(err, errBackupHashCollision))
	requireCode(t, err, goerror.CodeInternal)
}

type scriptedCodes struct {
	sets  [][]string
	calls int
}

func (s *scriptedCodes) Generate(int) ([]string, error) {
	set := s.sets[s.calls]
	s.calls++
	return set, nil
}

func TestProvisioningURIUsesIssuerFromConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.uc.cfg = mustConfig(t, "twofactor:\n  issuer: R&D Lab\n")

	out, err := f.uc.BeginEnrollment(context.Background(), BeginEnrollmentInput{UserID: 1, AccountName: "bob"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.ProvisioningURI.Reveal(), "otpauth://totp/R%26D%20Lab:bob?secret="))
}
