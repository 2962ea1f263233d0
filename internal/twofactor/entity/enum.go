package entity

import "strings"

// Method is the second factor a config uses.
type Method int16

const (
	// MethodUnknown is mean method is not known / not set.
	MethodUnknown Method = 0

	// MethodTOTP is an authenticator app generating time-based codes.
	MethodTOTP Method = 1

	// MethodSMS is reserved. Delivery over SMS is not implemented and a config
	// can never be enabled with it.
	MethodSMS Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodTOTP:
		return "TOTP"
	case MethodSMS:
		return "SMS"
	default:
		return "UNKNOWN"
	}
}

func (m Method) IsSupported() bool {
	return m == MethodTOTP
}

func MethodFromString(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TOTP":
		return MethodTOTP
	case "SMS":
		return MethodSMS
	default:
		return MethodUnknown
	}
}

// SessionState is a pending-auth session's position in the login state machine.
type SessionState int16

const (
	SessionStateCreated        SessionState = 0
	SessionStateAwaitingCode   SessionState = 1
	SessionStateAwaitingBackup SessionState = 2
	SessionStateVerified       SessionState = 3
	SessionStateFailedLocked   SessionState = 4
	SessionStateExpired        SessionState = 5
)

func (s SessionState) String() string {
	switch s {
	case SessionStateCreated:
		return "CREATED"
	case SessionStateAwaitingCode:
		return "AWAITING_CODE"
	case SessionStateAwaitingBackup:
		return "AWAITING_BACKUP"
	case SessionStateVerified:
		return "VERIFIED"
	case SessionStateFailedLocked:
		return "FAILED_LOCKED"
	case SessionStateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionStateVerified, SessionStateFailedLocked, SessionStateExpired:
		return true
	default:
		return false
	}
}

// Outcome is the typed result of a code submission.
type Outcome int16

const (
	OutcomeUnknown     Outcome = 0
	OutcomeVerified    Outcome = 1
	OutcomeInvalidCode Outcome = 2
	OutcomeLocked      Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// ConsumeResult is what happened to a submitted backup code.
type ConsumeResult int16

const (
	ConsumeNotFound    ConsumeResult = 0
	ConsumeAlreadyUsed ConsumeResult = 1
	Consumed           ConsumeResult = 2
)

func (c ConsumeResult) String() string {
	switch c {
	case Consumed:
		return "consumed"
	case ConsumeAlreadyUsed:
		return "already_used"
	default:
		return "not_found"
	}
}
