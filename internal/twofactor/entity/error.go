package entity

import "errors"

var (
	ErrSessionClosed      = errors.New("twofactor: session is closed")
	ErrSessionExpired     = errors.New("twofactor: session has expired")
	ErrInvalidTransition  = errors.New("twofactor: transition not allowed in current state")
	ErrBypassNotAllowed   = errors.New("twofactor: trusted device bypass only allowed before the first attempt")
	ErrNotEnabled         = errors.New("twofactor: not enabled for user")
	ErrAlreadyEnabled     = errors.New("twofactor: already enabled for user")
	ErrNoPendingEnroll    = errors.New("twofactor: no pending enrollment")
	ErrMethodNotSupported = errors.New("twofactor: method not supported")
	ErrReplayedCode       = errors.New("twofactor: code was already used")
	ErrSessionLocked      = errors.New("twofactor: session is busy")
)
