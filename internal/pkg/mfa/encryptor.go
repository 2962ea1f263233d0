package mfa

import (
	"crypto/sha256"
	"fmt"
)

// Encryptor seals secrets at rest. A ciphertext only opens under the Scope
// it was sealed with.
type Encryptor interface {
	Encrypt(plaintext []byte, scope Scope) ([]byte, error)
	Decrypt(ciphertext []byte, scope Scope) ([]byte, error)
}

// KeyProvider resolves AES-256 keys by id. New ciphertexts use the active
// id; retired ids stay readable until every row is re-sealed.
type KeyProvider interface {
	ActiveKeyID() uint8
	Key(id uint8) ([]byte, error)
}

type Purpose string

const (
	PurposeOTPSeed        Purpose = "otp_seed"        // confirmed authenticator secret
	PurposeEnrollmentSeed Purpose = "enrollment_seed" // candidate awaiting confirmation
)

// Scope is the owner and purpose a ciphertext is bound to.
type Scope struct {
	UserID  int64
	Purpose Purpose
}

// aad hashes a labelled canonical form so the additional data has a fixed
// length and a seed cannot be opened under another user or purpose.
func (s Scope) aad() []byte {
	sum := sha256.Sum256(fmt.Appendf(nil, "uid=%d\npurpose=%s\n", s.UserID, s.Purpose))
	return sum[:]
}
