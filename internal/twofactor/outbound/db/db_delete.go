package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func (s *DB) DeleteConfig(ctx context.Context, userID int64, clearDevices bool) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteConfig")
	defer func() { s.endSpan(span, err) }()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		return deleteUserRows(ctx, tx, userID, clearDevices)
	})
}

func (s *DB) DeleteUserData(ctx context.Context, userID int64) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteUserData")
	defer func() { s.endSpan(span, err) }()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		return deleteUserRows(ctx, tx, userID, true)
	})
}

func deleteUserRows(ctx context.Context, tx pgx.Tx, userID int64, clearDevices bool) error {
	if _, err := tx.Exec(ctx, `DELETE FROM twofactor_backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM twofactor_configs WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if clearDevices {
		if _, err := tx.Exec(ctx, `DELETE FROM twofactor_trusted_devices WHERE user_id = $1`, userID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTrustedDevice reports whether a device owned by userID was removed.
func (s *DB) DeleteTrustedDevice(ctx context.Context, userID, deviceID int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "DeleteTrustedDevice")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx,
		`DELETE FROM twofactor_trusted_devices WHERE id = $1 AND user_id = $2`,
		deviceID, userID,
	)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}
