package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/idempotency"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const maxBackupSetDraws = 3

var errBackupHashCollision = errors.New("twofactor: backup code hash collision")

type RegenerateBackupCodesInput struct {
	UserID         int64  `validate:"gt=0"`
	IdempotencyKey string `validate:"omitempty,max=128"`
}

type RegenerateBackupCodesOutput struct {
	BackupCodes []string
}

// RegenerateBackupCodes replaces the whole set. Every previously issued code,
// used or not, stops working.
func (s *Usecase) RegenerateBackupCodes(ctx context.Context, in RegenerateBackupCodesInput) (*RegenerateBackupCodesOutput, error) {
	ctx, span := s.startSpan(ctx, "RegenerateBackupCodes")
	defer span.End()

	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.loadEnabledConfig(ctx, in.UserID); err != nil {
		return nil, err
	}

	var out *RegenerateBackupCodesOutput
	run := func(ctx context.Context) error {
		plain, codes, err := s.newBackupCodeSet(ctx, in.UserID)
		if err != nil {
			return err
		}

		if err := s.repoDB.ReplaceBackupCodes(ctx, in.UserID, codes); err != nil {
			slog.ErrorContext(ctx, "failed to replace backup codes", "user_id", in.UserID, "error", err)
			return goerror.NewServer(err)
		}

		out = &RegenerateBackupCodesOutput{BackupCodes: plain}
		return nil
	}

	if in.IdempotencyKey == "" {
		if err := run(ctx); err != nil {
			return nil, err
		}
	} else {
		key := "twofactor:backup_codes:" + strconv.FormatInt(in.UserID, 10) + ":" + in.IdempotencyKey
		err := s.idemp.Exec(ctx, key, run, idempotency.WithStateTTL(s.idempotencyWindow()))
		switch {
		case errors.Is(err, idempotency.ErrAlreadyInProgress),
			errors.Is(err, idempotency.ErrAlreadyCompleted):
			slog.WarnContext(ctx, "duplicate backup code regeneration", "user_id", in.UserID, "error", err)
			return nil, goerror.NewBusiness("Request already processed", goerror.CodeConflict)
		case err != nil:
			var gerr *goerror.Error
			if errors.As(err, &gerr) {
				return nil, err
			}
			slog.ErrorContext(ctx, "failed to run idempotent regeneration", "user_id", in.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}
	}

	slog.InfoContext(ctx, "backup codes regenerated", "user_id", in.UserID, "count", len(out.BackupCodes))
	s.publish(ctx, Event{Type: EventBackupCodesRegenerated, UserID: in.UserID})

	return out, nil
}

// newBackupCodeSet draws a fresh set and its hashed rows. A set whose hashes
// collide is redrawn.
func (s *Usecase) newBackupCodeSet(ctx context.Context, userID int64) ([]string, []entity.BackupCode, error) {
	count := s.backupCodeCount()

	for range maxBackupSetDraws {
		plain, err := s.mfaRecoveryCode.Generate(count)
		if err != nil {
			slog.ErrorContext(ctx, "failed to generate backup codes", "user_id", userID, "error", err)
			return nil, nil, goerror.NewServer(err)
		}

		codes := make([]entity.BackupCode, 0, len(plain))
		seen := make(map[string]struct{}, len(plain))
		for _, code := range plain {
			hashed, err := s.backupHash.Hash(mfa.NormalizeRecoveryCode(code))
			if err != nil {
				slog.ErrorContext(ctx, "failed to hash backup code", "user_id", userID, "error", err)
				return nil, nil, goerror.NewServer(err)
			}
			seen[string(hashed)] = struct{}{}
			codes = append(codes, entity.BackupCode{
				ID:       s.uid.Generate(),
				UserID:   userID,
				CodeHash: string(hashed),
			})
		}

		if len(seen) == len(plain) {
			return plain, codes, nil
		}
		slog.WarnContext(ctx, "backup code hash collision, drawing a new set", "user_id", userID)
	}

	return nil, nil, goerror.NewServer(fmt.Errorf("%w after %d draws", errBackupHashCollision, maxBackupSetDraws))
}

// consumeBackupCode burns a code with a single conditional update. Malformed
// input has already been rejected by the caller.
func (s *Usecase) consumeBackupCode(ctx context.Context, userID int64, code string) (entity.ConsumeResult, error) {
	hashed, err := s.backupHash.Hash(mfa.NormalizeRecoveryCode(code))
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash backup code", "user_id", userID, "error", err)
		return entity.ConsumeNotFound, goerror.NewServer(err)
	}

	now := s.clock.Now()
	res, err := s.repoDB.ConsumeBackupCode(ctx, userID, string(hashed), now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume backup code", "user_id", userID, "error", err)
		return entity.ConsumeNotFound, goerror.NewServer(err)
	}

	s.consumptions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", res.String())))

	if res != entity.Consumed {
		slog.WarnContext(ctx, "backup code rejected", "user_id", userID, "result", res.String())
		return res, nil
	}

	if err := s.repoDB.TouchLastUsed(ctx, userID, now); err != nil {
		slog.WarnContext(ctx, "failed to update two-factor last_used_at", "user_id", userID, "error", err)
	}

	s.publish(ctx, Event{Type: EventBackupCodeUsed, UserID: userID, OccurredAt: now})

	return res, nil
}
