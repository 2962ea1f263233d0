package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

type BeginLoginInput struct {
	UserID int64 `validate:"gt=0"`
}

// BeginLogin opens a pending-auth session for a user who already passed
// primary authentication.
func (s *Usecase) BeginLogin(ctx context.Context, in BeginLoginInput) (*LoginSession, error) {
	ctx, span := s.startSpan(ctx, "BeginLogin")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.loadEnabledConfig(ctx, in.UserID); err != nil {
		return nil, err
	}

	id, err := s.token.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate login session id", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	sess := entity.NewPendingAuthSession(id.Reveal(), in.UserID, now, s.sessionTTL(), s.maxAttempts())
	if err := s.saveSession(ctx, sess, now); err != nil {
		return nil, err
	}

	return newLoginSession(sess), nil
}

// AuthorizedBeginLogin is BeginLogin for the internal endpoint, where the
// caller is a service that must hold the twofactor.login/begin permission.
func (s *Usecase) AuthorizedBeginLogin(ctx context.Context, in BeginLoginInput) (*LoginSession, error) {
	if _, err := s.authorize(ctx, "twofactor.login", "begin"); err != nil {
		return nil, err
	}
	return s.BeginLogin(ctx, in)
}

type SubmitCodeInput struct {
	SessionID      string `validate:"required,max=128"`
	Code           string `validate:"required,max=32"`
	RememberDevice bool
	Device         DeviceContext
}

type SubmitCodeOutput struct {
	Outcome           entity.Outcome
	UserID            int64
	AttemptsRemaining int
	// DeviceID and DeviceToken are set only when a device was remembered.
	DeviceID    int64
	DeviceToken mfa.Secret
}

func (s *Usecase) SubmitCode(ctx context.Context, in SubmitCodeInput) (*SubmitCodeOutput, error) {
	ctx, span := s.startSpan(ctx, "SubmitCode")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	var out *SubmitCodeOutput
	err := s.withSession(ctx, in.SessionID, func(ctx context.Context, sess *entity.PendingAuthSession, now time.Time) error {
		method, err := s.checkCodeFormat(sess.State, in.Code)
		if err != nil {
			return err
		}

		ok, err := s.verifySubmission(ctx, sess, in.Code, now)
		if err != nil {
			return err
		}
		s.recordVerification(ctx, method, ok)

		if ok {
			out, err = s.completeLogin(ctx, sess, now, in)
			return err
		}

		outcome := sess.RecordFailure(now)
		if err := s.saveSession(ctx, sess, now); err != nil {
			return err
		}

		out = &SubmitCodeOutput{Outcome: outcome, AttemptsRemaining: sess.AttemptsRemaining()}
		if outcome == entity.OutcomeLocked {
			s.lockouts.Add(ctx, 1)
			slog.WarnContext(ctx, "login session locked", "user_id", sess.UserID, "attempts", sess.AttemptCount)
			s.publish(ctx, Event{Type: EventLoginLocked, UserID: sess.UserID, Method: method, OccurredAt: now})
		} else {
			s.publish(ctx, Event{Type: EventLoginFailed, UserID: sess.UserID, Method: method, OccurredAt: now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// checkCodeFormat rejects malformed input before it can cost an attempt.
func (s *Usecase) checkCodeFormat(state entity.SessionState, code string) (string, error) {
	if state == entity.SessionStateAwaitingBackup {
		if !mfa.IsRecoveryCodeFormat(mfa.NormalizeRecoveryCode(code)) {
			return "", goerror.NewInvalidInput(nil, "code", "code must look like 1234-5678")
		}
		return "backup_code", nil
	}

	if !otp.IsCodeFormat(code) {
		return "", goerror.NewInvalidInput(nil, "code", "code must be 6 digits")
	}
	return "totp", nil
}

func (s *Usecase) verifySubmission(ctx context.Context, sess *entity.PendingAuthSession, code string, now time.Time) (bool, error) {
	if sess.State == entity.SessionStateAwaitingBackup {
		res, err := s.consumeBackupCode(ctx, sess.UserID, code)
		if err != nil {
			return false, err
		}
		return res == entity.Consumed, nil
	}

	cfg, err := s.loadEnabledConfig(ctx, sess.UserID)
	if err != nil {
		return false, err
	}

	seed, err := s.mfaEncryptor.Decrypt(cfg.SecretCiphertext, mfa.Scope{
		UserID:  sess.UserID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt totp secret", "user_id", sess.UserID, "error", err)
		return false, goerror.NewServer(err)
	}
	secret := mfa.NewSecret(seed)
	defer secret.Wipe()

	counter, ok := s.totp.Match(secret.Bytes(), code, now)
	if !ok {
		slog.WarnContext(ctx, "totp code mismatch", "user_id", sess.UserID)
		return false, nil
	}

	//nolint:gosec // time step counters stay far below MaxInt64
	advanced, err := s.repoDB.AdvanceTOTPCounter(ctx, sess.UserID, int64(counter), now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to advance totp counter", "user_id", sess.UserID, "error", err)
		return false, goerror.NewServer(err)
	}
	if !advanced {
		slog.WarnContext(ctx, "totp code replayed", "user_id", sess.UserID, "counter", counter, "error", entity.ErrReplayedCode)
		return false, nil
	}

	return true, nil
}

func (s *Usecase) completeLogin(ctx context.Context, sess *entity.PendingAuthSession, now time.Time, in SubmitCodeInput) (*SubmitCodeOutput, error) {
	out := &SubmitCodeOutput{Outcome: entity.OutcomeVerified, UserID: sess.UserID}

	// The code is already spent at this point, so a failure to remember the
	// device does not undo the verification.
	if in.RememberDevice {
		dev, err := s.issueTrustedDevice(ctx, sess.UserID, in.Device)
		if err != nil {
			slog.ErrorContext(ctx, "login verified without remembering device", "user_id", sess.UserID, "error", err)
		} else {
			out.DeviceID = dev.ID
			out.DeviceToken = dev.Token
		}
	}

	sess.MarkVerified(now)
	if err := s.saveSession(ctx, sess, now); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "login second factor verified", "user_id", sess.UserID)
	s.publish(ctx, Event{Type: EventLoginVerified, UserID: sess.UserID, DeviceID: out.DeviceID, OccurredAt: now})

	return out, nil
}

type SessionInput struct {
	SessionID string `validate:"required,max=128"`
}

func (s *Usecase) SwitchToBackupMode(ctx context.Context, in SessionInput) (*LoginSession, error) {
	ctx, span := s.startSpan(ctx, "SwitchToBackupMode")
	defer span.End()

	return s.switchMode(ctx, in, (*entity.PendingAuthSession).SwitchToBackup)
}

func (s *Usecase) SwitchToCodeMode(ctx context.Context, in SessionInput) (*LoginSession, error) {
	ctx, span := s.startSpan(ctx, "SwitchToCodeMode")
	defer span.End()

	return s.switchMode(ctx, in, (*entity.PendingAuthSession).SwitchToCode)
}

func (s *Usecase) switchMode(ctx context.Context, in SessionInput, transition func(*entity.PendingAuthSession, time.Time) error) (*LoginSession, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	var out *LoginSession
	err := s.withSession(ctx, in.SessionID, func(ctx context.Context, sess *entity.PendingAuthSession, now time.Time) error {
		if err := transition(sess, now); err != nil {
			return goerror.NewBusinessErr(err, "Login session is already in that mode", goerror.CodeConflict)
		}
		if err := s.saveSession(ctx, sess, now); err != nil {
			return err
		}
		out = newLoginSession(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

type BypassViaTrustedDeviceInput struct {
	SessionID   string `validate:"required,max=128"`
	DeviceToken string `validate:"required,max=128"`
}

type BypassViaTrustedDeviceOutput struct {
	Verified bool
	UserID   int64
}

// BypassViaTrustedDevice completes the login from a remembered device. It is
// only offered before the first code attempt; an unknown or expired token
// leaves the session untouched.
func (s *Usecase) BypassViaTrustedDevice(ctx context.Context, in BypassViaTrustedDeviceInput) (*BypassViaTrustedDeviceOutput, error) {
	ctx, span := s.startSpan(ctx, "BypassViaTrustedDevice")
	defer span.End()

	in.DeviceToken = strings.TrimSpace(in.DeviceToken)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	out := &BypassViaTrustedDeviceOutput{}
	err := s.withSession(ctx, in.SessionID, func(ctx context.Context, sess *entity.PendingAuthSession, now time.Time) error {
		if !sess.CanBypass() {
			return goerror.NewBusinessErr(entity.ErrBypassNotAllowed, "Trusted device can only be used before entering a code", goerror.CodeConflict)
		}

		device, err := s.validateTrustedDevice(ctx, sess.UserID, in.DeviceToken, now)
		if err != nil {
			return err
		}
		s.recordVerification(ctx, "trusted_device", device != nil)
		if device == nil {
			return nil
		}

		sess.MarkVerified(now)
		if err := s.saveSession(ctx, sess, now); err != nil {
			return err
		}

		out.Verified = true
		out.UserID = sess.UserID
		slog.InfoContext(ctx, "login verified by trusted device", "user_id", sess.UserID, "device_id", device.ID)
		s.publish(ctx, Event{Type: EventLoginVerified, UserID: sess.UserID, DeviceID: device.ID, Method: "trusted_device", OccurredAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// CancelLogin drops the session. Cancelling an unknown session is a no-op.
func (s *Usecase) CancelLogin(ctx context.Context, in SessionInput) error {
	ctx, span := s.startSpan(ctx, "CancelLogin")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	err := s.repoCache.WithSessionLock(ctx, in.SessionID, func(ctx context.Context) error {
		return s.repoCache.DeleteSession(ctx, in.SessionID)
	})

	return mapLockError(ctx, err)
}

// GetLoginSession is a read-only view; an overdue session is reported as
// EXPIRED without being written back.
func (s *Usecase) GetLoginSession(ctx context.Context, in SessionInput) (*LoginSession, error) {
	ctx, span := s.startSpan(ctx, "GetLoginSession")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	view := newLoginSession(sess)
	if !sess.IsTerminal() && sess.IsExpired(s.clock.Now()) {
		view.State = entity.SessionStateExpired
	}
	view.SessionID = ""

	return view, nil
}
