package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/BradenHooton/authguard/internal/models"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
}

// SessionIssuer hands out a session token after a successful login
type SessionIssuer interface {
	GenerateAccessToken(userID, email string) (string, error)
}

// LoginResult is returned by a successful Login
type LoginResult struct {
	User        *models.User
	AccessToken string
}

// AuthService handles registration and credential checks
type AuthService struct {
	repo        UserRepository
	hasher      PasswordHasher
	sessions    SessionIssuer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService. sessions may be nil, in which
// case Login returns no access token.
func NewAuthService(repo UserRepository, hasher PasswordHasher, sessions SessionIssuer, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		sessions:    sessions,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// NormalizeEmail trims and lowercases an address before lookup or storage
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account. A weak password yields a
// *pkgauth.PasswordValidationError and an existing email models.ErrConflict;
// neither writes anything.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	if err := pkgauth.ValidatePassword(password); err != nil {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "register_failed",
			FailureReason: "weak_password",
		})
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Info("registration rejected: email already registered",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "register_failed",
			FailureReason: "email_exists",
		})
		return nil, models.ErrConflict
	case !errors.Is(err, models.ErrNotFound):
		s.logger.Error("failed to check existing user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.Create(ctx, &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "register",
		UserID:    user.ID,
		Success:   true,
	})

	return user, nil
}

// Login verifies credentials. Unknown email and wrong password both return
// models.ErrUnauthorized after comparable hashing work.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get user by email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		_ = s.hasher.Compare(s.dummyPasswordHash(), password)
		s.failLogin(ctx, "", "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	if user.PasswordHash == "" {
		_ = s.hasher.Compare(s.dummyPasswordHash(), password)
		s.failLogin(ctx, user.ID, "no_password")
		return nil, models.ErrUnauthorized
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.failLogin(ctx, user.ID, "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	result := &LoginResult{User: user}
	if s.sessions != nil {
		token, err := s.sessions.GenerateAccessToken(user.ID, user.Email)
		if err != nil {
			s.logger.Error("failed to generate access token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		result.AccessToken = token
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		Success:   true,
	})

	return result, nil
}

func (s *AuthService) failLogin(ctx context.Context, userID, reason string) {
	s.logger.Info("login failed", slog.String("reason", reason))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		FailureReason: reason,
	})
}

// dummyPasswordHash is compared against when there is no stored hash so the
// response time does not reveal whether the account exists.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("authguard-dummy-password")
		if err != nil {
			s.logger.Error("failed to prepare dummy hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
