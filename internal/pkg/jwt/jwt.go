package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSigningMethod = errors.New("jwt: invalid signing method")
	ErrSigningKeyTooShort   = errors.New("jwt: HS512 signing key must be at least 64 bytes")
	ErrTokenExpired         = errors.New("jwt: token has expired")
	ErrInvalidToken         = errors.New("jwt: invalid token")
)

// JWT verifies access tokens. Generate mints tokens for service accounts and
// tests; end-user tokens come from the identity service.
type JWT interface {
	Generate(sub Subject) (string, error)
	Verify(token string) (Claims, error)
}

// Subject is who a token speaks for: an end user (UserID set) or a calling
// service (Service set, UserID zero).
type Subject struct {
	UserID  int64
	Email   string
	Service string
}

type Config struct {
	// Secret must be at least 64 bytes.
	Secret    []byte
	Issuer    string
	Audiences []string
	TTL       time.Duration
	// Leeway tolerates clock drift against the issuer.
	Leeway time.Duration
	Clock  interface{ Now() time.Time }
	// UUID issues the jti claim.
	UUID interface{ Generate() string }
}

// Claims is the token payload. The user id travels as a JSON string.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"user_id,string"`
	UserEmail string `json:"user_email"`
}

// IsService reports whether the token belongs to a backend caller.
func (c *Claims) IsService() bool {
	return c.UserID == 0 && c.Subject != ""
}

type authKey struct{}

// GetAuth returns the verified claims of the request, or nil.
func GetAuth(ctx context.Context) *Claims {
	if clm, ok := ctx.Value(authKey{}).(Claims); ok {
		return &clm
	}
	return nil
}

func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authKey{}, clm)
}
