package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

const deviceColumns = `id, user_id, token_hash, label, metadata, created_at, expires_at`

func (s *DB) GetConfig(ctx context.Context, userID int64) (_ *entity.Config, err error) {
	ctx, span := s.startSpan(ctx, "GetConfig")
	defer func() { s.endSpan(span, err) }()

	var (
		cfg    entity.Config
		method int16
	)
	err = s.conn.QueryRow(ctx, `
		SELECT user_id, method, secret_ciphertext, enabled_at, last_used_at,
		       last_used_counter, created_at, updated_at
		FROM twofactor_configs
		WHERE user_id = $1`, userID,
	).Scan(
		&cfg.UserID, &method, &cfg.SecretCiphertext, &cfg.EnabledAt, &cfg.LastUsedAt,
		&cfg.LastUsedCounter, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	cfg.Method = entity.Method(method)
	return &cfg, nil
}

func (s *DB) CountUnusedBackupCodes(ctx context.Context, userID int64) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "CountUnusedBackupCodes")
	defer func() { s.endSpan(span, err) }()

	var n int
	err = s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM twofactor_backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
	).Scan(&n)
	return n, s.mapError(err)
}

func (s *DB) GetTrustedDeviceByTokenHash(ctx context.Context, userID int64, tokenHash string) (_ *entity.TrustedDevice, err error) {
	ctx, span := s.startSpan(ctx, "GetTrustedDeviceByTokenHash")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx,
		`SELECT `+deviceColumns+` FROM twofactor_trusted_devices WHERE user_id = $1 AND token_hash = $2`,
		userID, tokenHash,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	device, err := pgx.CollectExactlyOneRow(rows, scanDevice)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &device, nil
}

func (s *DB) ListTrustedDevices(ctx context.Context, userID int64) (_ []entity.TrustedDevice, err error) {
	ctx, span := s.startSpan(ctx, "ListTrustedDevices")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx,
		`SELECT `+deviceColumns+` FROM twofactor_trusted_devices WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	devices, err := pgx.CollectRows(rows, scanDevice)
	return devices, s.mapError(err)
}

func scanDevice(row pgx.CollectableRow) (entity.TrustedDevice, error) {
	var d entity.TrustedDevice
	err := row.Scan(&d.ID, &d.UserID, &d.TokenHash, &d.Label, &d.Metadata, &d.CreatedAt, &d.ExpiresAt)
	return d, err
}
