package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authguard/internal/clock"
	"github.com/BradenHooton/authguard/internal/models"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

const (
	// DefaultResetTokenExpiry is how long an issued reset link stays valid
	DefaultResetTokenExpiry = time.Hour

	resetTokenBytes = 32
)

// PasswordResetRepository persists reset tokens
type PasswordResetRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	Delete(ctx context.Context, token string) error
	// ResetPassword stores the new hash and deletes the token atomically,
	// returning models.ErrNotFound if the token is already gone.
	ResetPassword(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResetEmailSender delivers the reset link to the account owner
type ResetEmailSender interface {
	SendPasswordResetEmail(ctx context.Context, to, token string, validFor time.Duration) error
}

// PasswordResetService issues and consumes single-use password reset tokens
type PasswordResetService struct {
	users       UserRepository
	tokens      PasswordResetRepository
	hasher      PasswordHasher
	email       ResetEmailSender
	clock       clock.Clock
	expiry      time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewPasswordResetService(
	users UserRepository,
	tokens PasswordResetRepository,
	hasher PasswordHasher,
	email ResetEmailSender,
	clk clock.Clock,
	expiry time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordResetService {
	if expiry <= 0 {
		expiry = DefaultResetTokenExpiry
	}
	return &PasswordResetService{
		users:       users,
		tokens:      tokens,
		hasher:      hasher,
		email:       email,
		clock:       clk,
		expiry:      expiry,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GenerateResetToken returns 32 random bytes, hex encoded
func GenerateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a token for user and emails the reset link. The token is
// persisted before sending, so it stays valid even when the email fails.
func (s *PasswordResetService) Issue(ctx context.Context, user *models.User) (string, error) {
	token, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	record := &models.PasswordResetToken{
		Identifier: user.ID,
		Token:      token,
		Expires:    s.clock.Now().Add(s.expiry),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, token, s.expiry); err != nil {
		return "", fmt.Errorf("failed to send reset email: %w", err)
	}

	s.auditLogger.LogPasswordReset(ctx, pkglogger.AuditEvent{
		EventType: "reset_issued",
		UserID:    user.ID,
		Success:   true,
	})
	return token, nil
}

// ForgotPassword issues a token when email belongs to an account and does
// nothing otherwise. Delivery failures are logged, not returned, so the
// caller's response does not depend on whether the account exists.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.Issue(ctx, user); err != nil {
		s.logger.Error("failed to issue password reset",
			slog.String("user_id", user.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
	return nil
}

// Consume sets a new password using token. The token is deleted only
// together with the password update; an expired token is deleted on sight.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	record, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.failReset(ctx, "", "invalid_token")
			return models.ErrInvalidResetToken
		}
		s.logger.Error("failed to look up reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := s.clock.Now()
	if record.IsExpired(now) {
		if err := s.tokens.Delete(ctx, record.Token); err != nil {
			s.logger.Warn("failed to delete expired reset token", slog.Any("error", err))
		}
		s.failReset(ctx, record.Identifier, "token_expired")
		return models.ErrResetTokenExpired
	}

	user, err := s.users.GetByID(ctx, record.Identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.failReset(ctx, record.Identifier, "user_not_found")
			return models.ErrUserNotFound
		}
		s.logger.Error("failed to look up reset token owner", slog.Any("error", err))
		return models.ErrInternalServer
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.tokens.ResetPassword(ctx, record.Token, user.ID, hash, now); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			s.failReset(ctx, user.ID, "invalid_token")
			return models.ErrInvalidResetToken
		case errors.Is(err, models.ErrUserNotFound):
			s.failReset(ctx, user.ID, "user_not_found")
			return models.ErrUserNotFound
		}
		s.logger.Error("failed to reset password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogPasswordReset(ctx, pkglogger.AuditEvent{
		EventType: "reset_consumed",
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// CleanupExpired removes tokens that expired before now
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.tokens.CleanupExpired(ctx, s.clock.Now())
}

func (s *PasswordResetService) failReset(ctx context.Context, userID, reason string) {
	s.auditLogger.LogPasswordReset(ctx, pkglogger.AuditEvent{
		EventType:     "reset_failed",
		UserID:        userID,
		FailureReason: reason,
	})
}
