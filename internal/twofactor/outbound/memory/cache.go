package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/shandysiswandi/twofa/internal/pkg/goerror"
	"github.com/shandysiswandi/twofa/internal/twofactor/entity"
)

func (s *Store) SaveEnrollment(_ context.Context, c entity.EnrollmentCandidate, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.SecretCiphertext = bytes.Clone(c.SecretCiphertext)
	s.enrollments[c.UserID] = expiring[entity.EnrollmentCandidate]{val: c, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetEnrollment(_ context.Context, userID int64) (*entity.EnrollmentCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[userID]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.enrollments, userID)
		return nil, goerror.ErrNotFound
	}

	c := e.val
	c.SecretCiphertext = bytes.Clone(c.SecretCiphertext)
	return &c, nil
}

func (s *Store) DeleteEnrollment(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.enrollments, userID)
	return nil
}

func (s *Store) SaveSession(_ context.Context, sess entity.PendingAuthSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = expiring[entity.PendingAuthSession]{val: sess, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*entity.PendingAuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.sessions, id)
		return nil, goerror.ErrNotFound
	}

	sess := e.val
	return &sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// WithSessionLock serializes fn with every other call for the same id.
func (s *Store) WithSessionLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	unlock := s.locks.lock(id)
	defer unlock()

	return fn(ctx)
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
