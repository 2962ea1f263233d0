package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/valueobject"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

// EnableConfig stores a confirmed config with its first backup code set. A
// user who already has an enabled config gets goerror.ErrConflict.
func (s *DB) EnableConfig(ctx context.Context, cfg entity.Config, codes []entity.BackupCode) (err error) {
	ctx, span := s.startSpan(ctx, "EnableConfig")
	defer func() { s.endSpan(span, err) }()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO twofactor_configs
			    (user_id, method, secret_ciphertext, enabled_at, last_used_at, last_used_counter, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (user_id) DO UPDATE SET
			    method = EXCLUDED.method,
			    secret_ciphertext = EXCLUDED.secret_ciphertext,
			    enabled_at = EXCLUDED.enabled_at,
			    last_used_at = EXCLUDED.last_used_at,
			    last_used_counter = EXCLUDED.last_used_counter,
			    updated_at = EXCLUDED.updated_at
			WHERE twofactor_configs.enabled_at IS NULL`,
			cfg.UserID, int16(cfg.Method), cfg.SecretCiphertext, cfg.EnabledAt, cfg.LastUsedAt,
			cfg.LastUsedCounter, cfg.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return goerror.ErrConflict
		}

		return replaceCodes(ctx, tx, cfg.UserID, codes)
	})
}

func (s *DB) ReplaceBackupCodes(ctx context.Context, userID int64, codes []entity.BackupCode) (err error) {
	ctx, span := s.startSpan(ctx, "ReplaceBackupCodes")
	defer func() { s.endSpan(span, err) }()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		return replaceCodes(ctx, tx, userID, codes)
	})
}

func replaceCodes(ctx context.Context, tx pgx.Tx, userID int64, codes []entity.BackupCode) error {
	if _, err := tx.Exec(ctx, `DELETE FROM twofactor_backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}

	if len(codes) == 0 {
		return nil
	}

	rows := make([][]any, len(codes))
	for i, c := range codes {
		rows[i] = []any{c.ID, userID, c.CodeHash}
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"twofactor_backup_codes"},
		[]string{"id", "user_id", "code_hash"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (s *DB) CreateTrustedDevice(ctx context.Context, device entity.TrustedDevice) (err error) {
	ctx, span := s.startSpan(ctx, "CreateTrustedDevice")
	defer func() { s.endSpan(span, err) }()

	// pgx sends a nil map as NULL; the column is NOT NULL.
	meta := device.Metadata
	if meta == nil {
		meta = valueobject.JSONMap{}
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO twofactor_trusted_devices (id, user_id, token_hash, label, metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		device.ID, device.UserID, device.TokenHash, device.Label, meta,
		device.CreatedAt, device.ExpiresAt,
	)
	return s.mapError(err)
}
