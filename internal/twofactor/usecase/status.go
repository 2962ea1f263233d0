package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

type StatusInput struct {
	UserID int64 `validate:"gt=0"`
}

func (s *Usecase) Status(ctx context.Context, in StatusInput) (*entity.Status, error) {
	ctx, span := s.startSpan(ctx, "Status")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	devices, err := s.repoDB.ListTrustedDevices(ctx, in.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list trusted devices", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	st := &entity.Status{
		TrustedDevices: lo.CountBy(devices, func(d entity.TrustedDevice) bool { return d.IsValidAt(now) }),
	}

	cfg, err := s.repoDB.GetConfig(ctx, in.UserID)
	if errors.Is(err, goerror.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get two-factor config", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	remaining, err := s.repoDB.CountUnusedBackupCodes(ctx, in.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count backup codes", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	st.Enabled = cfg.IsEnabled()
	st.Method = cfg.Method
	st.EnabledAt = cfg.EnabledAt
	st.LastUsedAt = cfg.LastUsedAt
	st.RemainingBackupCodes = remaining

	return st, nil
}
