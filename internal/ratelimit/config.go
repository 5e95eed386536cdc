package ratelimit

import "time"

// Class identifies an endpoint class with its own window and threshold
type Class string

const (
	ClassRegistration  Class = "registration"
	ClassLogin         Class = "login"
	ClassPasswordReset Class = "password-reset"
)

// Config holds the quota for one endpoint class
type Config struct {
	Class                  Class
	Window                 time.Duration
	MaxAttempts            int
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
}

// RegistrationLimit returns the quota for account registration (5 per hour)
func RegistrationLimit() Config {
	return Config{
		Class:                  ClassRegistration,
		Window:                 time.Hour,
		MaxAttempts:            5,
		SkipSuccessfulRequests: true,
	}
}

// LoginLimit returns the quota for login (5 per 15 minutes)
func LoginLimit() Config {
	return Config{
		Class:                  ClassLogin,
		Window:                 15 * time.Minute,
		MaxAttempts:            5,
		SkipSuccessfulRequests: true,
	}
}

// PasswordResetLimit returns the quota shared by forgot-password and
// reset-password (3 per hour)
func PasswordResetLimit() Config {
	return Config{
		Class:                  ClassPasswordReset,
		Window:                 time.Hour,
		MaxAttempts:            3,
		SkipSuccessfulRequests: true,
	}
}

func entryKey(class Class, identity string) string {
	return string(class) + ":" + identity
}
