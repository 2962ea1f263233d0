package db

import (
	"context"
	"time"

	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

// AdvanceTOTPCounter moves last_used_counter forward. It reports false when
// counter is not newer than the stored one, which makes the code a replay.
func (s *DB) AdvanceTOTPCounter(ctx context.Context, userID, counter int64, at time.Time) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "AdvanceTOTPCounter")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, `
		UPDATE twofactor_configs
		SET last_used_counter = $2, last_used_at = $3, updated_at = $3
		WHERE user_id = $1 AND enabled_at IS NOT NULL AND last_used_counter < $2`,
		userID, counter, at,
	)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *DB) TouchLastUsed(ctx context.Context, userID int64, at time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "TouchLastUsed")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx,
		`UPDATE twofactor_configs SET last_used_at = $2, updated_at = $2 WHERE user_id = $1`,
		userID, at,
	)
	return s.mapError(err)
}

// ConsumeBackupCode burns a code with one conditional UPDATE, so two racing
// submissions of the same code cannot both succeed.
func (s *DB) ConsumeBackupCode(ctx context.Context, userID int64, codeHash string, at time.Time) (_ entity.ConsumeResult, err error) {
	ctx, span := s.startSpan(ctx, "ConsumeBackupCode")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, `
		UPDATE twofactor_backup_codes SET used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		userID, codeHash, at,
	)
	if err != nil {
		return entity.ConsumeNotFound, s.mapError(err)
	}
	if tag.RowsAffected() == 1 {
		return entity.Consumed, nil
	}

	var exists bool
	err = s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM twofactor_backup_codes WHERE user_id = $1 AND code_hash = $2)`,
		userID, codeHash,
	).Scan(&exists)
	if err != nil {
		return entity.ConsumeNotFound, s.mapError(err)
	}

	if exists {
		return entity.ConsumeAlreadyUsed, nil
	}
	return entity.ConsumeNotFound, nil
}
