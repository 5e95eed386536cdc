package models

import (
	"time"
)

// PasswordResetToken is a single-use secret authorizing one password change.
// Identifier is the owning user's ID; a user may hold several live tokens.
type PasswordResetToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"-"`
	Expires    time.Time `json:"expires"`
}

// IsExpired reports whether the token is past its expiry at now
func (t *PasswordResetToken) IsExpired(now time.Time) bool {
	return now.After(t.Expires)
}
