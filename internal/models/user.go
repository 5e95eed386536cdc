package models

import (
	"time"
)

type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string // empty for accounts without a credential
	Image             *string
	EmailVerified     *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
