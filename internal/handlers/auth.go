package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/ratelimit"
	"github.com/BradenHooton/authguard/internal/services"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

const (
	msgInvalidInput       = "Invalid input"
	msgInvalidCredentials = "Invalid email or password"
	msgForgotPassword     = "If your email is registered, you will receive a password reset link."
	msgSomethingWentWrong = "Something went wrong. Please try again."
)

// AuthServiceInterface defines the interface for registration and login
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
}

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	ForgotPassword(ctx context.Context, email string) error
	Consume(ctx context.Context, token, newPassword string) error
}

// AttemptTracker receives the outcome of each gated request
type AttemptTracker interface {
	Update(ctx context.Context, identity string, cfg ratelimit.Config, success bool) error
	RecordFailedLogin(ctx context.Context, identity string) error
	ClearFailedLogins(ctx context.Context, identity string) error
}

// AuthHandler handles the credential endpoints under /auth
type AuthHandler struct {
	auth     AuthServiceInterface
	reset    PasswordResetServiceInterface
	tracker  AttemptTracker
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth AuthServiceInterface, reset PasswordResetServiceInterface, tracker AttemptTracker, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		reset:    reset,
		tracker:  tracker,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// Response DTOs

type RegisteredUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterResponse struct {
	Message string         `json:"message"`
	User    RegisteredUser `json:"user"`
}

type LoggedInUser struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Image         *string    `json:"image"`
	EmailVerified *time.Time `json:"emailVerified"`
}

type LoginResponse struct {
	Message     string       `json:"message"`
	User        LoggedInUser `json:"user"`
	AccessToken string       `json:"access_token,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity := pkghttp.ExtractClientIP(r, h.ipConfig)
	ctx := pkglogger.WithClientIP(r.Context(), identity)
	cfg := ratelimit.RegistrationLimit()

	var req RegisterRequest
	if fields := decodeAndValidate(w, r, &req); fields != nil {
		h.track(ctx, identity, cfg, false)
		pkghttp.WriteValidationError(w, msgInvalidInput, fields)
		return
	}

	user, err := h.auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.track(ctx, identity, cfg, false)

		var pve *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pve):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "weak_password", "Password does not meet requirements", pve.Errors)
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Email already registered")
		default:
			h.logger.Error("registration failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, msgSomethingWentWrong)
		}
		return
	}

	h.track(ctx, identity, cfg, true)

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User: RegisteredUser{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	identity := pkghttp.ExtractClientIP(r, h.ipConfig)
	ctx := pkglogger.WithClientIP(r.Context(), identity)
	cfg := ratelimit.LoginLimit()

	var req LoginRequest
	if fields := decodeAndValidate(w, r, &req); fields != nil {
		h.track(ctx, identity, cfg, false)
		pkghttp.WriteValidationError(w, msgInvalidInput, fields)
		return
	}

	result, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			if err := h.tracker.RecordFailedLogin(ctx, identity); err != nil {
				h.logger.Warn("failed to record failed login", slog.Any("error", err))
			}
			h.track(ctx, identity, cfg, false)
			pkghttp.WriteUnauthorized(w, msgInvalidCredentials)
			return
		}

		h.track(ctx, identity, cfg, false)
		h.logger.Error("login failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, msgSomethingWentWrong)
		return
	}

	if err := h.tracker.ClearFailedLogins(ctx, identity); err != nil {
		h.logger.Warn("failed to clear failed logins", slog.Any("error", err))
	}
	h.track(ctx, identity, cfg, true)

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		User: LoggedInUser{
			ID:            result.User.ID,
			Name:          result.User.Name,
			Email:         result.User.Email,
			Image:         result.User.Image,
			EmailVerified: result.User.EmailVerified,
		},
		AccessToken: result.AccessToken,
	})
}

// ForgotPassword handles POST /auth/forgot-password. Any syntactically valid
// email receives the same response whether or not it is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	identity := pkghttp.ExtractClientIP(r, h.ipConfig)
	ctx := pkglogger.WithClientIP(r.Context(), identity)
	cfg := ratelimit.PasswordResetLimit()

	var req ForgotPasswordRequest
	if fields := decodeAndValidate(w, r, &req); fields != nil {
		h.track(ctx, identity, cfg, false)
		pkghttp.WriteValidationError(w, msgInvalidInput, fields)
		return
	}

	if err := h.reset.ForgotPassword(ctx, req.Email); err != nil {
		h.logger.Error("forgot password failed", slog.Any("error", err))
	}
	h.track(ctx, identity, cfg, true)

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: msgForgotPassword})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	identity := pkghttp.ExtractClientIP(r, h.ipConfig)
	ctx := pkglogger.WithClientIP(r.Context(), identity)
	cfg := ratelimit.PasswordResetLimit()

	var req ResetPasswordRequest
	if fields := decodeAndValidate(w, r, &req); fields != nil {
		h.track(ctx, identity, cfg, false)
		pkghttp.WriteValidationError(w, msgInvalidInput, fields)
		return
	}

	err := h.reset.Consume(ctx, req.Token, req.Password)
	if err != nil {
		h.track(ctx, identity, cfg, false)

		var pve *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pve):
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "weak_password", "Password does not meet requirements", pve.Errors)
		case errors.Is(err, models.ErrInvalidResetToken):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_token", "Invalid or expired token")
		case errors.Is(err, models.ErrResetTokenExpired):
			pkghttp.WriteError(w, http.StatusBadRequest, "token_expired", "Token has expired")
		case errors.Is(err, models.ErrUserNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		default:
			h.logger.Error("password reset failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, msgSomethingWentWrong)
		}
		return
	}

	h.track(ctx, identity, cfg, true)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset successfully"})
}

// track reports the request outcome; a store failure only costs accuracy
func (h *AuthHandler) track(ctx context.Context, identity string, cfg ratelimit.Config, success bool) {
	if err := h.tracker.Update(ctx, identity, cfg, success); err != nil {
		h.logger.Warn("failed to update rate limit",
			slog.String("class", string(cfg.Class)),
			slog.Any("error", err))
	}
}
