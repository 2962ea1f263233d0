package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

type BeginEnrollmentInput struct {
	UserID      int64  `validate:"gt=0"`
	AccountName string `validate:"required,max=254"`
}

type BeginEnrollmentOutput struct {
	// Secret is the Base32 seed for manual entry.
	Secret          mfa.Secret
	ProvisioningURI mfa.Secret
	ExpiresAt       time.Time
}

func (s *Usecase) BeginEnrollment(ctx context.Context, in BeginEnrollmentInput) (*BeginEnrollmentOutput, error) {
	ctx, span := s.startSpan(ctx, "BeginEnrollment")
	defer span.End()

	in.AccountName = strings.TrimSpace(in.AccountName)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if err := s.ensureNotEnabled(ctx, in.UserID); err != nil {
		return nil, err
	}

	secret, err := otp.GenerateSecret()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate totp secret", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}
	defer secret.Wipe()

	ciphertext, err := s.mfaEncryptor.Encrypt(secret.Bytes(), mfa.Scope{
		UserID:  in.UserID,
		Purpose: mfa.PurposeEnrollmentSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt enrollment secret", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	ttl := s.enrollmentTTL()
	candidate := entity.EnrollmentCandidate{
		UserID:           in.UserID,
		SecretCiphertext: ciphertext,
		AccountName:      in.AccountName,
		ExpiresAt:        s.clock.Now().Add(ttl),
	}

	if err := s.repoCache.SaveEnrollment(ctx, candidate, ttl); err != nil {
		slog.ErrorContext(ctx, "failed to save enrollment candidate", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &BeginEnrollmentOutput{
		Secret:          mfa.NewSecret([]byte(otp.EncodeSecret(secret.Bytes()))),
		ProvisioningURI: mfa.NewSecret([]byte(otp.ProvisioningURI(secret.Bytes(), in.AccountName, s.issuer()))),
		ExpiresAt:       candidate.ExpiresAt,
	}, nil
}

type ConfirmEnrollmentInput struct {
	UserID int64  `validate:"gt=0"`
	Code   string `validate:"required,otpcode"`
}

type ConfirmEnrollmentOutput struct {
	Enabled bool
	// BackupCodes are shown once and never retrievable again.
	BackupCodes []string
}

func (s *Usecase) ConfirmEnrollment(ctx context.Context, in ConfirmEnrollmentInput) (*ConfirmEnrollmentOutput, error) {
	ctx, span := s.startSpan(ctx, "ConfirmEnrollment")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if err := s.ensureNotEnabled(ctx, in.UserID); err != nil {
		return nil, err
	}

	candidate, err := s.repoCache.GetEnrollment(ctx, in.UserID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no pending enrollment", "user_id", in.UserID)
		return nil, goerror.NewBusinessErr(entity.ErrNoPendingEnroll, "No pending two-factor enrollment", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get enrollment candidate", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	if !now.Before(candidate.ExpiresAt) {
		slog.WarnContext(ctx, "enrollment candidate expired", "user_id", in.UserID)
		return nil, goerror.NewBusinessErr(entity.ErrNoPendingEnroll, "No pending two-factor enrollment", goerror.CodeNotFound)
	}

	seed, err := s.mfaEncryptor.Decrypt(candidate.SecretCiphertext, mfa.Scope{
		UserID:  in.UserID,
		Purpose: mfa.PurposeEnrollmentSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt enrollment secret", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}
	secret := mfa.NewSecret(seed)
	defer secret.Wipe()

	matched, ok := s.totp.Match(secret.Bytes(), in.Code, now)
	s.recordVerification(ctx, "enrollment", ok)
	if !ok {
		slog.WarnContext(ctx, "enrollment code mismatch", "user_id", in.UserID)
		return &ConfirmEnrollmentOutput{Enabled: false}, nil
	}

	ciphertext, err := s.mfaEncryptor.Encrypt(secret.Bytes(), mfa.Scope{
		UserID:  in.UserID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt totp secret", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	plain, codes, err := s.newBackupCodeSet(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	cfg := entity.Config{
		UserID:           in.UserID,
		Method:           entity.MethodTOTP,
		SecretCiphertext: ciphertext,
		EnabledAt:        &now,
		LastUsedAt:       &now,
		LastUsedCounter:  int64(matched), //nolint:gosec // time step counters stay far below MaxInt64
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.repoDB.EnableConfig(ctx, cfg, codes)
	if errors.Is(err, goerror.ErrConflict) {
		slog.WarnContext(ctx, "two-factor enabled concurrently", "user_id", in.UserID)
		return nil, goerror.NewBusinessErr(entity.ErrAlreadyEnabled, "Two-factor authentication is already enabled", goerror.CodeConflict)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to enable two-factor config", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.repoCache.DeleteEnrollment(ctx, in.UserID); err != nil {
		slog.WarnContext(ctx, "failed to delete enrollment candidate", "user_id", in.UserID, "error", err)
	}

	slog.InfoContext(ctx, "two-factor enabled", "user_id", in.UserID, "method", entity.MethodTOTP.String())
	s.publish(ctx, Event{Type: EventEnabled, UserID: in.UserID, Method: entity.MethodTOTP.String(), OccurredAt: now})

	return &ConfirmEnrollmentOutput{Enabled: true, BackupCodes: plain}, nil
}

func (s *Usecase) ensureNotEnabled(ctx context.Context, userID int64) error {
	cfg, err := s.repoDB.GetConfig(ctx, userID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get two-factor config", "user_id", userID, "error", err)
		return goerror.NewServer(err)
	}

	if cfg.IsEnabled() {
		return goerror.NewBusinessErr(entity.ErrAlreadyEnabled, "Two-factor authentication is already enabled", goerror.CodeConflict)
	}

	return nil
}

// loadEnabledConfig returns the user's config or ErrNotEnabled as a business
// error when there is none.
func (s *Usecase) loadEnabledConfig(ctx context.Context, userID int64) (*entity.Config, error) {
	cfg, err := s.repoDB.GetConfig(ctx, userID)
	if errors.Is(err, goerror.ErrNotFound) || (err == nil && !cfg.IsEnabled()) {
		return nil, goerror.NewBusinessErr(entity.ErrNotEnabled, "Two-factor authentication is not enabled", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get two-factor config", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !cfg.Method.IsSupported() {
		slog.WarnContext(ctx, "two-factor config uses unsupported method", "user_id", userID, "method", cfg.Method.String())
		return nil, goerror.NewBusinessErr(entity.ErrMethodNotSupported, "Two-factor method not supported", goerror.CodeConflict)
	}

	return cfg, nil
}
