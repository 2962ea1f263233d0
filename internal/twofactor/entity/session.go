package entity

import "time"

// PendingAuthSession tracks a login between password success and second
// factor completion. All transitions are methods on the value; persistence
// and locking are the caller's concern.
type PendingAuthSession struct {
	ID           string
	UserID       int64
	State        SessionState
	AttemptCount int
	MaxAttempts  int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// NewPendingAuthSession starts a session. CREATED is never persisted: a
// session is handed out already awaiting a TOTP code.
func NewPendingAuthSession(id string, userID int64, now time.Time, ttl time.Duration, maxAttempts int) *PendingAuthSession {
	return &PendingAuthSession{
		ID:          id,
		UserID:      userID,
		State:       SessionStateAwaitingCode,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}
}

func (s *PendingAuthSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *PendingAuthSession) IsTerminal() bool {
	return s.State.IsTerminal()
}

func (s *PendingAuthSession) AttemptsRemaining() int {
	return max(s.MaxAttempts-s.AttemptCount, 0)
}

// Guard is checked before any operation. It moves an overdue session to
// EXPIRED and reports ErrSessionExpired once; afterwards ErrSessionClosed.
func (s *PendingAuthSession) Guard(now time.Time) error {
	if s.IsTerminal() {
		return ErrSessionClosed
	}

	if s.IsExpired(now) {
		s.State = SessionStateExpired
		s.UpdatedAt = now
		return ErrSessionExpired
	}

	return nil
}

func (s *PendingAuthSession) SwitchToBackup(now time.Time) error {
	if s.State != SessionStateAwaitingCode {
		return ErrInvalidTransition
	}

	s.State = SessionStateAwaitingBackup
	s.UpdatedAt = now
	return nil
}

func (s *PendingAuthSession) SwitchToCode(now time.Time) error {
	if s.State != SessionStateAwaitingBackup {
		return ErrInvalidTransition
	}

	s.State = SessionStateAwaitingCode
	s.UpdatedAt = now
	return nil
}

// RecordFailure counts a wrong code. Attempts are shared by both modes.
func (s *PendingAuthSession) RecordFailure(now time.Time) Outcome {
	s.AttemptCount++
	s.UpdatedAt = now

	if s.AttemptCount >= s.MaxAttempts {
		s.State = SessionStateFailedLocked
		return OutcomeLocked
	}

	return OutcomeInvalidCode
}

func (s *PendingAuthSession) MarkVerified(now time.Time) {
	s.State = SessionStateVerified
	s.UpdatedAt = now
}

// CanBypass reports whether a trusted device may still skip the code step.
func (s *PendingAuthSession) CanBypass() bool {
	return !s.IsTerminal() && s.AttemptCount == 0
}
