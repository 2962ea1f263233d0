package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/authz"
	"github.com/shandysiswandi/twofa/internal/pkg/clock"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/hash"
	"github.com/shandysiswandi/twofa/internal/pkg/idempotency"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/jwt"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/pkg/validator"
	"github.com/shandysiswandi/twofa/internal/twofactor/outbound/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
twofactor:
  issuer: Acme
  backup_codes:
    count: 10
  session:
    ttl_seconds: 300
    max_attempts: 5
  trusted_device:
    ttl_days: 30
  enrollment:
    ttl_minutes: 10
`

var start = time.Unix(1700000000, 0)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) PublishTwoFactorEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type seqID struct{ n atomic.Int64 }

func (s *seqID) Generate() int64 { return s.n.Add(1) }

type fixture struct {
	uc       *Usecase
	store    *memory.Store
	clock    *clock.Manual
	msg      *recorder
	routine  *goroutine.Manager
	verifier *otp.Verifier
}

func newFixture(t *testing.T, extraYAML ...string) *fixture {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(baseConfig+joinYAML(extraYAML)))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	ring, err := mfa.NewKeyRing(1, map[uint8][]byte{1: bytes.Repeat([]byte{7}, 32)})
	require.NoError(t, err)

	enforcer, err := authz.NewEnforcer(
		[]string{"support, twofactor, reset", "login-service, twofactor.login, begin"},
		map[string]string{"7": "support", "9": "login-service"},
	)
	require.NoError(t, err)

	clk := clock.NewManual(start)
	store := memory.New(clk.Now)
	msg := &recorder{}
	routine := goroutine.NewManager(0)
	verifier := otp.NewVerifier(1)
	hmac := hash.NewHMACSHA256("test-hmac-secret")

	uc := New(Dependency{
		RepoDB:          store,
		RepoCache:       store,
		RepoMessaging:   msg,
		Idempotency:     idempotency.NewMemory(clk.Now),
		Validator:       v,
		Config:          cfg,
		BackupCodeHash:  hmac.Derive("backup_code"),
		DeviceTokenHash: hmac.Derive("trusted_device"),
		MFAEncryptor:    mfa.NewAESGCMEncryptor(ring),
		MFARecoveryCode: mfa.NewRecoveryCode(),
		Token:           mfa.NewRandomToken(),
		Totp:            verifier,
		UID:             &seqID{},
		Clock:           clk,
		Instrument:      instrument.NewNoop(),
		Enforcer:        enforcer,
		Goroutine:       routine,
	})

	return &fixture{uc: uc, store: store, clock: clk, msg: msg, routine: routine, verifier: verifier}
}

func joinYAML(parts []string) string {
	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString("\n")
		b.WriteString(p)
	}
	return b.String()
}

// events waits for background publishing. The fixture cannot publish
// afterwards.
func (f *fixture) events(t *testing.T) []EventType {
	t.Helper()
	require.NoError(t, f.routine.Wait())

	f.msg.mu.Lock()
	defer f.msg.mu.Unlock()

	out := make([]EventType, 0, len(f.msg.events))
	for _, ev := range f.msg.events {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fixture) code(t *testing.T, secret []byte) string {
	t.Helper()
	code, err := f.verifier.CurrentCode(secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

// nextCode moves to the next time step so the code is not a replay.
func (f *fixture) nextCode(t *testing.T, secret []byte) string {
	t.Helper()
	f.clock.Advance(otp.Period * time.Second)
	return f.code(t, secret)
}

// wrongCode returns a well-formed code that no step in the window accepts.
func (f *fixture) wrongCode(t *testing.T, secret []byte) string {
	t.Helper()
	for i := 0; ; i++ {
		c := fmt.Sprintf("%06d", i)
		if !f.verifier.Verify(secret, c, f.clock.Now()) {
			return c
		}
	}
}

func (f *fixture) enable(t *testing.T, userID int64) ([]byte, []string) {
	t.Helper()
	ctx := context.Background()

	begin, err := f.uc.BeginEnrollment(ctx, BeginEnrollmentInput{UserID: userID, AccountName: "alice@example.com"})
	require.NoError(t, err)

	secret, err := otp.DecodeSecret(begin.Secret.Reveal())
	require.NoError(t, err)

	out, err := f.uc.ConfirmEnrollment(ctx, ConfirmEnrollmentInput{UserID: userID, Code: f.code(t, secret)})
	require.NoError(t, err)
	require.True(t, out.Enabled)

	return secret, out.BackupCodes
}

func (f *fixture) beginLogin(t *testing.T, userID int64) string {
	t.Helper()
	sess, err := f.uc.BeginLogin(context.Background(), BeginLoginInput{UserID: userID})
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)
	return sess.SessionID
}

func requireCode(t *testing.T, err error, code goerror.Code) {
	t.Helper()
	var gerr *goerror.Error
	require.True(t, errors.As(err, &gerr), "expected goerror, got %v", err)
	assert.Equal(t, code, gerr.Code(), gerr.Msg())
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	var gerr *goerror.Error
	require.True(t, errors.As(err, &gerr), "expected goerror, got %v", err)
	assert.Equal(t, goerror.TypeValidation, gerr.Type())
}

func TestNew_ConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewViperFromBytes("yaml", []byte("app:\n  name: twofa\n"))
	require.NoError(t, err)

	uc := New(Dependency{Config: cfg, Instrument: instrument.NewNoop()})
	assert.Equal(t, defaultIssuer, uc.issuer())
	assert.Equal(t, defaultBackupCodeCount, uc.backupCodeCount())
	assert.Equal(t, defaultEnrollmentTTL, uc.enrollmentTTL())
	assert.Equal(t, defaultSessionTTL, uc.sessionTTL())
	assert.Equal(t, defaultMaxAttempts, uc.maxAttempts())
	assert.Equal(t, defaultTrustedDeviceTTL, uc.trustedDeviceTTL())
	assert.Equal(t, defaultIdempotencyWindow, uc.idempotencyWindow())
	assert.True(t, uc.disableClearsTrustedDevices())
}

func mustConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)
	return cfg
}

func claims(userID int64) jwt.Claims {
	clm := jwt.Claims{UserID: userID}
	clm.Subject = strconv.FormatInt(userID, 10)
	return clm
}
