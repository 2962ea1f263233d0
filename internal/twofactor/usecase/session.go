package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoginSession is the client-facing view of a pending-auth session.
type LoginSession struct {
	SessionID         string
	UserID            int64
	State             entity.SessionState
	AttemptsRemaining int
	ExpiresAt         time.Time
}

func newLoginSession(sess *entity.PendingAuthSession) *LoginSession {
	return &LoginSession{
		SessionID:         sess.ID,
		UserID:            sess.UserID,
		State:             sess.State,
		AttemptsRemaining: sess.AttemptsRemaining(),
		ExpiresAt:         sess.ExpiresAt,
	}
}

func errSessionClosed() error {
	return goerror.NewBusinessErr(entity.ErrSessionClosed, "Login session is closed", goerror.CodeGone)
}

func errSessionExpired() error {
	return goerror.NewBusinessErr(entity.ErrSessionExpired, "Login session has expired", goerror.CodeGone)
}

// withSession runs fn while holding the session lock, after the session has
// been loaded and passed its guard. fn is responsible for saving changes.
func (s *Usecase) withSession(
	ctx context.Context,
	id string,
	fn func(ctx context.Context, sess *entity.PendingAuthSession, now time.Time) error,
) error {
	err := s.repoCache.WithSessionLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.loadSession(ctx, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := sess.Guard(now); err != nil {
			if !errors.Is(err, entity.ErrSessionExpired) {
				return errSessionClosed()
			}

			slog.InfoContext(ctx, "login session expired", "user_id", sess.UserID)
			if err := s.saveSession(ctx, sess, now); err != nil {
				return err
			}
			return errSessionExpired()
		}

		return fn(ctx, sess, now)
	})

	return mapLockError(ctx, err)
}

func mapLockError(ctx context.Context, err error) error {
	var gerr *goerror.Error
	switch {
	case err == nil, errors.As(err, &gerr):
		return err
	case errors.Is(err, entity.ErrSessionLocked):
		slog.WarnContext(ctx, "login session is busy")
		return goerror.NewBusinessErr(err, "Login session is busy, please retry", goerror.CodeTooManyRequest)
	default:
		slog.ErrorContext(ctx, "login session operation failed", "error", err)
		return goerror.NewServer(err)
	}
}

func (s *Usecase) loadSession(ctx context.Context, id string) (*entity.PendingAuthSession, error) {
	sess, err := s.repoCache.GetSession(ctx, id)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, errSessionClosed()
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get login session", "error", err)
		return nil, goerror.NewServer(err)
	}
	return sess, nil
}

// saveSession keeps the record for one extra session lifetime past its
// expiry so late calls still observe a closed session.
func (s *Usecase) saveSession(ctx context.Context, sess *entity.PendingAuthSession, now time.Time) error {
	ttl := max(sess.ExpiresAt.Sub(now), 0) + s.sessionTTL()
	if err := s.repoCache.SaveSession(ctx, *sess, ttl); err != nil {
		slog.ErrorContext(ctx, "failed to save login session", "user_id", sess.UserID, "state", sess.State.String(), "error", err)
		return goerror.NewServer(err)
	}
	return nil
}

func (s *Usecase) recordVerification(ctx context.Context, method string, ok bool) {
	outcome := entity.OutcomeInvalidCode
	if ok {
		outcome = entity.OutcomeVerified
	}
	s.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome.String()),
	))
}
