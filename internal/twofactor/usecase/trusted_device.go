package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/valueobject"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

const defaultDeviceLabel = "Trusted device"

// DeviceContext describes the client asking to be remembered.
type DeviceContext struct {
	Label     string `validate:"max=100"`
	UserAgent string
	IP        string
}

type issuedDevice struct {
	ID    int64
	Token mfa.Secret
}

func (s *Usecase) issueTrustedDevice(ctx context.Context, userID int64, dc DeviceContext) (*issuedDevice, error) {
	token, err := s.token.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate device token", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	tokenHash, err := s.deviceHash.Hash(token.Reveal())
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash device token", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	label := strings.TrimSpace(dc.Label)
	if label == "" {
		label = defaultDeviceLabel
	}

	meta := valueobject.JSONMap{}
	meta.SetNonEmpty("user_agent", dc.UserAgent)
	meta.SetNonEmpty("ip", dc.IP)

	now := s.clock.Now()
	device := entity.TrustedDevice{
		ID:        s.uid.Generate(),
		UserID:    userID,
		TokenHash: string(tokenHash),
		Label:     label,
		Metadata:  meta,
		CreatedAt: now,
		ExpiresAt: now.Add(s.trustedDeviceTTL()),
	}

	if err := s.repoDB.CreateTrustedDevice(ctx, device); err != nil {
		slog.ErrorContext(ctx, "failed to create trusted device", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.publish(ctx, Event{Type: EventTrustedDeviceAdded, UserID: userID, DeviceID: device.ID, OccurredAt: now})

	return &issuedDevice{ID: device.ID, Token: token}, nil
}

// validateTrustedDevice reports whether token is a live trust grant of
// userID. Only storage failures are errors.
func (s *Usecase) validateTrustedDevice(ctx context.Context, userID int64, token string, now time.Time) (*entity.TrustedDevice, error) {
	if !mfa.IsTokenFormat(token) {
		return nil, nil
	}

	tokenHash, err := s.deviceHash.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash device token", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	device, err := s.repoDB.GetTrustedDeviceByTokenHash(ctx, userID, string(tokenHash))
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get trusted device", "user_id", userID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if subtle.ConstantTimeCompare([]byte(device.TokenHash), tokenHash) != 1 || device.UserID != userID {
		return nil, nil
	}

	if !device.IsValidAt(now) {
		slog.InfoContext(ctx, "trusted device expired", "user_id", userID, "device_id", device.ID)
		return nil, nil
	}

	return device, nil
}

type ListTrustedDevicesInput struct {
	UserID int64 `validate:"gt=0"`
}

type TrustedDeviceView struct {
	ID        int64
	Label     string
	Metadata  valueobject.JSONMap
	CreatedAt time.Time
	ExpiresAt time.Time
	Expired   bool
}

func (s *Usecase) ListTrustedDevices(ctx context.Context, in ListTrustedDevicesInput) ([]TrustedDeviceView, error) {
	ctx, span := s.startSpan(ctx, "ListTrustedDevices")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	devices, err := s.repoDB.ListTrustedDevices(ctx, in.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list trusted devices", "user_id", in.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	slices.SortStableFunc(devices, func(a, b entity.TrustedDevice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	now := s.clock.Now()
	return lo.Map(devices, func(d entity.TrustedDevice, _ int) TrustedDeviceView {
		return TrustedDeviceView{
			ID:        d.ID,
			Label:     d.Label,
			Metadata:  d.Metadata,
			CreatedAt: d.CreatedAt,
			ExpiresAt: d.ExpiresAt,
			Expired:   !d.IsValidAt(now),
		}
	}), nil
}

type RevokeTrustedDeviceInput struct {
	UserID   int64 `validate:"gt=0"`
	DeviceID int64 `validate:"gt=0"`
}

// RevokeTrustedDevice is idempotent: an unknown id, or one owned by another
// user, is a no-op.
func (s *Usecase) RevokeTrustedDevice(ctx context.Context, in RevokeTrustedDeviceInput) error {
	ctx, span := s.startSpan(ctx, "RevokeTrustedDevice")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	deleted, err := s.repoDB.DeleteTrustedDevice(ctx, in.UserID, in.DeviceID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete trusted device", "user_id", in.UserID, "device_id", in.DeviceID, "error", err)
		return goerror.NewServer(err)
	}

	if deleted {
		s.publish(ctx, Event{Type: EventTrustedDeviceRevoked, UserID: in.UserID, DeviceID: in.DeviceID})
	}

	return nil
}
