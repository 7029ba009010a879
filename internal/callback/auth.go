package callback

import (
	"crypto/subtle"
	"errors"
)

// AuthResult is the outcome of checking a caller's credentials.
type AuthResult struct {
	Valid bool
	Err   error
}

// Authenticator decides whether a callback comes from a trusted worker.
type Authenticator interface {
	Authenticate(secret string) AuthResult
}

// SharedSecret accepts callers presenting the configured secret.
type SharedSecret struct {
	secret []byte
}

func NewSharedSecret(secret string) *SharedSecret {
	return &SharedSecret{secret: []byte(secret)}
}

// Authenticate compares in constant time. An unset secret rejects everyone.
func (s *SharedSecret) Authenticate(secret string) AuthResult {
	if len(s.secret) == 0 {
		return AuthResult{Err: errors.New("callback secret is not configured")}
	}
	if secret == "" {
		return AuthResult{Err: errors.New("missing callback secret")}
	}
	if subtle.ConstantTimeCompare([]byte(secret), s.secret) != 1 {
		return AuthResult{Err: errors.New("callback secret mismatch")}
	}
	return AuthResult{Valid: true}
}
