package usecase

import (
	"crypto/subtle"
)

// Gate is the credential gate: one shared static password for all operators.
// The comparison is constant-time; there is no rate limiting or lockout, and
// the authenticated flag itself lives in the operator's session, not here.
type Gate struct {
	password []byte
}

// NewGate creates a credential gate for the configured admin password.
func NewGate(password string) *Gate {
	return &Gate{password: []byte(password)}
}

// Authenticate reports whether the submitted password matches.
func (g *Gate) Authenticate(submitted string) bool {
	return subtle.ConstantTimeCompare(g.password, []byte(submitted)) == 1
}
