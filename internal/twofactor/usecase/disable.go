package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

type DisableInput struct {
	UserID int64 `validate:"gt=0"`
}

// Disable removes the enabled config and its backup codes. Trusted devices
// are cleared too unless twofactor.disable_clears_trusted_devices is false.
func (s *Usecase) Disable(ctx context.Context, in DisableInput) error {
	ctx, span := s.startSpan(ctx, "Disable")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	cfg, err := s.repoDB.GetConfig(ctx, in.UserID)
	if errors.Is(err, goerror.ErrNotFound) {
		return goerror.NewBusinessErr(entity.ErrNotEnabled, "Two-factor authentication is not enabled", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get two-factor config", "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}

	clearDevices := s.disableClearsTrustedDevices()
	if err := s.repoDB.DeleteConfig(ctx, in.UserID, clearDevices); err != nil {
		slog.ErrorContext(ctx, "failed to delete two-factor config", "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "two-factor disabled", "user_id", in.UserID, "cleared_devices", clearDevices)
	s.publish(ctx, Event{Type: EventDisabled, UserID: in.UserID, Method: cfg.Method.String()})

	return nil
}

type AdminResetInput struct {
	UserID int64 `validate:"gt=0"`
}

// AdminReset is the support-desk path for a user who lost both the
// authenticator and the backup codes. It always clears trusted devices.
func (s *Usecase) AdminReset(ctx context.Context, in AdminResetInput) error {
	ctx, span := s.startSpan(ctx, "AdminReset")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	clm, err := s.authorize(ctx, "twofactor", "reset")
	if err != nil {
		return err
	}

	if err := s.repoDB.DeleteUserData(ctx, in.UserID); err != nil {
		slog.ErrorContext(ctx, "failed to reset two-factor data", "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}

	if err := s.repoCache.DeleteEnrollment(ctx, in.UserID); err != nil {
		slog.WarnContext(ctx, "failed to delete enrollment candidate", "user_id", in.UserID, "error", err)
	}

	actorID, _ := strconv.ParseInt(clm.Subject, 10, 64)
	slog.InfoContext(ctx, "two-factor reset by admin", "user_id", in.UserID, "actor_id", clm.Subject)
	s.publish(ctx, Event{Type: EventDisabled, UserID: in.UserID, ActorID: actorID})

	return nil
}

type PurgeUserInput struct {
	UserID int64 `validate:"gt=0"`
}

// PurgeUser drops every 2FA record of a deleted account. It is idempotent.
func (s *Usecase) PurgeUser(ctx context.Context, in PurgeUserInput) error {
	ctx, span := s.startSpan(ctx, "PurgeUser")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	if err := s.repoDB.DeleteUserData(ctx, in.UserID); err != nil {
		slog.ErrorContext(ctx, "failed to purge two-factor data", "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}

	if err := s.repoCache.DeleteEnrollment(ctx, in.UserID); err != nil {
		slog.ErrorContext(ctx, "failed to purge enrollment candidate", "user_id", in.UserID, "error", err)
		return goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "two-factor data purged", "user_id", in.UserID)
	return nil
}
