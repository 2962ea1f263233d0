// Package cache keeps short-lived two-factor state in Redis: enrollment
// candidates, pending-auth sessions and the per-session lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	prefixEnrollment = "twofa:enrollment:"
	prefixSession    = "twofa:session:"
	prefixLock       = "twofa:session_lock:"

	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 2 * time.Second
	lockRetryEvery  = 25 * time.Millisecond
)

// releaseLock deletes the lock only when it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Option func(*Cache)

// WithLockTTL bounds how long a crashed holder can keep a session locked.
func WithLockTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.lockTTL = d
		}
	}
}

// WithLockWait is how long WithSessionLock waits before giving up with
// entity.ErrSessionLocked.
func WithLockWait(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.lockWait = d
		}
	}
}

type Cache struct {
	client   redis.UniversalClient
	ins      instrument.Instrumentation
	lockTTL  time.Duration
	lockWait time.Duration
}

func New(client redis.UniversalClient, ins instrument.Instrumentation, opts ...Option) *Cache {
	c := &Cache{
		client:   client,
		ins:      ins,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("twofactor.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, entity.ErrSessionLocked) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type enrollmentRecord struct {
	UserID           int64     `json:"user_id"`
	SecretCiphertext []byte    `json:"secret_ciphertext"`
	AccountName      string    `json:"account_name"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type sessionRecord struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	State        int16     `json:"state"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func enrollmentKey(userID int64) string {
	return prefixEnrollment + strconv.FormatInt(userID, 10)
}

func (c *Cache) SaveEnrollment(ctx context.Context, e entity.EnrollmentCandidate, ttl time.Duration) (err error) {
	ctx, span := c.startSpan(ctx, "SaveEnrollment")
	defer func() { c.endSpan(span, err) }()

	data, err := json.Marshal(enrollmentRecord(e))
	if err != nil {
		return err
	}

	return c.client.Set(ctx, enrollmentKey(e.UserID), data, ttl).Err()
}

func (c *Cache) GetEnrollment(ctx context.Context, userID int64) (_ *entity.EnrollmentCandidate, err error) {
	ctx, span := c.startSpan(ctx, "GetEnrollment")
	defer func() { c.endSpan(span, err) }()

	data, err := c.client.Get(ctx, enrollmentKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec enrollmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode enrollment: %w", err)
	}

	out := entity.EnrollmentCandidate(rec)
	return &out, nil
}

func (c *Cache) DeleteEnrollment(ctx context.Context, userID int64) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteEnrollment")
	defer func() { c.endSpan(span, err) }()

	return c.client.Del(ctx, enrollmentKey(userID)).Err()
}

func (c *Cache) SaveSession(ctx context.Context, sess entity.PendingAuthSession, ttl time.Duration) (err error) {
	ctx, span := c.startSpan(ctx, "SaveSession")
	defer func() { c.endSpan(span, err) }()

	data, err := json.Marshal(sessionRecord{
		ID:           sess.ID,
		UserID:       sess.UserID,
		State:        int16(sess.State),
		AttemptCount: sess.AttemptCount,
		MaxAttempts:  sess.MaxAttempts,
		CreatedAt:    sess.CreatedAt,
		ExpiresAt:    sess.ExpiresAt,
		UpdatedAt:    sess.UpdatedAt,
	})
	if err != nil {
		return err
	}

	return c.client.Set(ctx, prefixSession+sess.ID, data, ttl).Err()
}

func (c *Cache) GetSession(ctx context.Context, id string) (_ *entity.PendingAuthSession, err error) {
	ctx, span := c.startSpan(ctx, "GetSession")
	defer func() { c.endSpan(span, err) }()

	data, err := c.client.Get(ctx, prefixSession+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &entity.PendingAuthSession{
		ID:           rec.ID,
		UserID:       rec.UserID,
		State:        entity.SessionState(rec.State),
		AttemptCount: rec.AttemptCount,
		MaxAttempts:  rec.MaxAttempts,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

func (c *Cache) DeleteSession(ctx context.Context, id string) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteSession")
	defer func() { c.endSpan(span, err) }()

	return c.client.Del(ctx, prefixSession+id).Err()
}

// WithSessionLock runs fn while holding a Redis lock on the session. It
// returns entity.ErrSessionLocked when the lock cannot be taken in time.
func (c *Cache) WithSessionLock(ctx context.Context, id string, fn func(ctx context.Context) error) (err error) {
	ctx, span := c.startSpan(ctx, "WithSessionLock")
	defer func() { c.endSpan(span, err) }()

	key := prefixLock + id
	token := uuid.NewString()

	b := retry.WithMaxDuration(c.lockWait, retry.NewConstant(lockRetryEvery))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := c.client.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(entity.ErrSessionLocked)
		}
		return nil
	})
	if err != nil {
		return err
	}

	defer func() {
		if rErr := releaseLock.Run(context.WithoutCancel(ctx), c.client, []string{key}, token).Err(); rErr != nil {
			slog.WarnContext(ctx, "failed to release session lock, it will expire", "error", rErr)
		}
	}()

	return fn(ctx)
}
