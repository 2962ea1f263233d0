// Package idempotency remembers which client request keys have already run,
// so a retried POST does not repeat its side effect.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("idempotency: operation already in progress")
	ErrAlreadyCompleted  = errors.New("idempotency: operation already completed")
	ErrInvalidState      = errors.New("idempotency: invalid state")
)

type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Idempotency guards one operation per key. A failed operation releases its
// key, so only successes and runs still in flight reject a retry.
type Idempotency interface {
	Acquire(ctx context.Context, key string, lock time.Duration) (State, error)
	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

const (
	keyPrefix           = "twofa:idempotency:"
	defaultLockDuration = time.Minute
	defaultStateTTL     = time.Minute
)

type Option func(*execOptions)

type execOptions struct {
	lock time.Duration
	ttl  time.Duration
}

// WithLockDuration bounds how long a crashed run blocks its key.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lock = d }
}

// WithStateTTL sets how long a completed key keeps rejecting retries.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.ttl = d }
}

// acquireScript sets the key to in_progress unless it exists and returns the
// previous value, or "" when the caller now owns the key.
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	return cur
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return ''
`)

// Redis keeps key state in Redis so retries landing on another replica see
// the first attempt.
type Redis struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, lock time.Duration) (State, error) {
	prev, err := acquireScript.Run(ctx, r.client, []string{keyPrefix + key},
		string(StateInProgress), lock.Milliseconds()).Text()
	if err != nil {
		return "", fmt.Errorf("idempotency: acquire: %w", err)
	}
	return parseState(prev)
}

func (r *Redis) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+key, string(StateCompleted), ttl).Err()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}

func (r *Redis) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	return execute(ctx, r, key, fn, opts...)
}

func parseState(v string) (State, error) {
	switch State(v) {
	case "":
		return StateNone, nil
	case StateInProgress, StateCompleted:
		return State(v), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, v)
	}
}

func execute(ctx context.Context, t Idempotency, key string, fn func(context.Context) error, opts ...Option) error {
	o := execOptions{lock: defaultLockDuration, ttl: defaultStateTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lock <= 0 {
		o.lock = defaultLockDuration
	}
	if o.ttl <= 0 {
		o.ttl = defaultStateTTL
	}

	state, err := t.Acquire(ctx, key, o.lock)
	if err != nil {
		return err
	}
	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	}

	if err := fn(ctx); err != nil {
		if rerr := t.Release(ctx, key); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return t.MarkCompleted(ctx, key, o.ttl)
}
