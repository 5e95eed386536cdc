package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/clock"
	"github.com/BradenHooton/authguard/internal/models"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newPassword = "BrandNew456$"

type resetFixture struct {
	svc    *PasswordResetService
	users  *InMemoryUserRepository
	tokens *InMemoryPasswordResetRepository
	mailer *MockMailer
	clock  *clock.Fake
	user   *models.User
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	users := NewInMemoryUserRepository()
	tokens := NewInMemoryPasswordResetRepository(users)
	mailer := &MockMailer{}
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	logger := newTestLogger()
	hasher := newTestHasher()

	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	user, err := users.Create(context.Background(), &models.User{Name: "Ada", Email: "ada@example.com", PasswordHash: hash})
	require.NoError(t, err)

	svc := NewPasswordResetService(users, tokens, hasher,
		NewEmailService(mailer, "https://app.example.com"),
		clk, time.Hour, logger, pkglogger.NewAuditLogger(logger))

	return &resetFixture{svc: svc, users: users, tokens: tokens, mailer: mailer, clock: clk, user: user}
}

func TestGenerateResetToken(t *testing.T) {
	a, err := GenerateResetToken()
	require.NoError(t, err)
	b, err := GenerateResetToken()
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), a)
	assert.NotEqual(t, a, b)
}

func TestPasswordResetService_Issue(t *testing.T) {
	f := newResetFixture(t)

	token, err := f.svc.Issue(context.Background(), f.user)
	require.NoError(t, err)

	stored := f.tokens.Tokens(f.user.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, token, stored[0].Token)
	assert.Equal(t, f.clock.Now().Add(time.Hour), stored[0].Expires)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)
	assert.Equal(t, "Password Reset Request", sent[0].Subject)
	assert.Contains(t, sent[0].TextBody, "https://app.example.com/reset-password?token="+token)
	assert.Contains(t, sent[0].TextBody, "1 hour")
}

func TestPasswordResetService_Issue_EmailFailureKeepsToken(t *testing.T) {
	f := newResetFixture(t)
	f.mailer.SendFunc = func(ctx context.Context, msg Message) error {
		return errors.New("ses throttled")
	}

	_, err := f.svc.Issue(context.Background(), f.user)

	assert.Error(t, err)
	assert.Len(t, f.tokens.Tokens(f.user.ID), 1)
}

func TestPasswordResetService_Issue_MultipleLiveTokens(t *testing.T) {
	f := newResetFixture(t)

	first, err := f.svc.Issue(context.Background(), f.user)
	require.NoError(t, err)
	second, err := f.svc.Issue(context.Background(), f.user)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, f.tokens.Tokens(f.user.ID), 2)
}

func TestPasswordResetService_ForgotPassword(t *testing.T) {
	t.Run("registered email issues a token", func(t *testing.T) {
		f := newResetFixture(t)
		require.NoError(t, f.svc.ForgotPassword(context.Background(), "ADA@example.com"))
		assert.Len(t, f.tokens.Tokens(f.user.ID), 1)
		assert.Len(t, f.mailer.Sent(), 1)
	})

	t.Run("unknown email does nothing", func(t *testing.T) {
		f := newResetFixture(t)
		require.NoError(t, f.svc.ForgotPassword(context.Background(), "nobody@example.com"))
		assert.Empty(t, f.tokens.Tokens(f.user.ID))
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("delivery failure is not reported", func(t *testing.T) {
		f := newResetFixture(t)
		f.mailer.SendFunc = func(ctx context.Context, msg Message) error { return errors.New("down") }
		assert.NoError(t, f.svc.ForgotPassword(context.Background(), "ada@example.com"))
	})

	t.Run("lookup failure is reported", func(t *testing.T) {
		logger := newTestLogger()
		repo := &MockUserRepository{
			GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return nil, errors.New("db down")
			},
		}
		svc := NewPasswordResetService(repo, &MockPasswordResetRepository{}, newTestHasher(),
			NewEmailService(&MockMailer{}, ""), clock.System(), 0, logger, pkglogger.NewAuditLogger(logger))
		assert.ErrorIs(t, svc.ForgotPassword(context.Background(), "ada@example.com"), models.ErrInternalServer)
	})
}

func TestPasswordResetService_Consume_Success(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, f.user)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.svc.Consume(ctx, token, newPassword))

	updated, err := f.users.GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NoError(t, newTestHasher().Compare(updated.PasswordHash, newPassword))
	require.NotNil(t, updated.PasswordChangedAt)
	assert.Equal(t, f.clock.Now(), *updated.PasswordChangedAt)
	assert.Empty(t, f.tokens.Tokens(f.user.ID))

	assert.ErrorIs(t, f.svc.Consume(ctx, token, "Another789%"), models.ErrInvalidResetToken)
}

func TestPasswordResetService_Consume_UnknownToken(t *testing.T) {
	f := newResetFixture(t)
	assert.ErrorIs(t, f.svc.Consume(context.Background(), "does-not-exist", newPassword), models.ErrInvalidResetToken)
}

func TestPasswordResetService_Consume_ExpiredDeletesToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, f.user)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.Len(t, f.tokens.Tokens(f.user.ID), 1, "token is still valid exactly at expiry")

	f.clock.Advance(time.Millisecond)
	assert.ErrorIs(t, f.svc.Consume(ctx, token, newPassword), models.ErrResetTokenExpired)
	assert.Empty(t, f.tokens.Tokens(f.user.ID))

	assert.ErrorIs(t, f.svc.Consume(ctx, token, newPassword), models.ErrInvalidResetToken)
}

func TestPasswordResetService_Consume_WeakPasswordKeepsToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, f.user)
	require.NoError(t, err)

	err = f.svc.Consume(ctx, token, "short")
	var pve *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pve)
	assert.Len(t, f.tokens.Tokens(f.user.ID), 1)
}

func TestPasswordResetService_Consume_OrphanedToken(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tokens.Create(ctx, &models.PasswordResetToken{
		Identifier: "ghost",
		Token:      "orphan",
		Expires:    f.clock.Now().Add(time.Hour),
	}))

	assert.ErrorIs(t, f.svc.Consume(ctx, "orphan", newPassword), models.ErrUserNotFound)
}

func TestPasswordResetService_Consume_UpdateFailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	deleted := false

	tokens := &MockPasswordResetRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.PasswordResetToken, error) {
			return &models.PasswordResetToken{Identifier: "user123", Token: token, Expires: time.Now().Add(time.Hour)}, nil
		},
		DeleteFunc: func(ctx context.Context, token string) error {
			deleted = true
			return nil
		},
		ResetPasswordFunc: func(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error {
			return errors.New("tx aborted")
		},
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "ada@example.com", "Ada"), nil
		},
	}
	svc := NewPasswordResetService(users, tokens, newTestHasher(), NewEmailService(&MockMailer{}, ""),
		clock.System(), time.Hour, logger, pkglogger.NewAuditLogger(logger))

	assert.ErrorIs(t, svc.Consume(ctx, "tok", newPassword), models.ErrInternalServer)
	assert.False(t, deleted)
}

func TestPasswordResetService_Consume_LostRace(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	tokens := &MockPasswordResetRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.PasswordResetToken, error) {
			return &models.PasswordResetToken{Identifier: "user123", Token: token, Expires: time.Now().Add(time.Hour)}, nil
		},
		ResetPasswordFunc: func(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error {
			return models.ErrNotFound
		},
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return NewTestUser(id, "ada@example.com", "Ada"), nil
		},
	}
	svc := NewPasswordResetService(users, tokens, newTestHasher(), NewEmailService(&MockMailer{}, ""),
		clock.System(), time.Hour, logger, pkglogger.NewAuditLogger(logger))

	assert.ErrorIs(t, svc.Consume(ctx, "tok", newPassword), models.ErrInvalidResetToken)
}

func TestPasswordResetService_CleanupExpired(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.user)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Issue(ctx, f.user)
	require.NoError(t, err)

	n, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.tokens.Tokens(f.user.ID), 1)
}

func TestEmailService_ResetLinkEmbedsToken(t *testing.T) {
	svc := NewEmailService(&MockMailer{}, "https://app.example.com")
	link := svc.ResetLink("abc123")
	assert.True(t, strings.HasSuffix(link, "?token=abc123"))
}
