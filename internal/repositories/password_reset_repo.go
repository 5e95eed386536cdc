package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authguard/internal/database"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PasswordResetRepository persists reset tokens keyed by the token string.
type PasswordResetRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db, pool: db.Pool}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	query := `INSERT INTO password_reset_tokens (token, identifier, expires) VALUES ($1, $2, $3)`

	if _, err := r.pool.Exec(ctx, query, token.Token, token.Identifier, token.Expires); err != nil {
		return fmt.Errorf("failed to create password reset token: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByToken looks a token up by exact match, returning models.ErrNotFound when absent.
func (r *PasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := `SELECT identifier, token, expires FROM password_reset_tokens WHERE token = $1`

	var t models.PasswordResetToken
	if err := r.pool.QueryRow(ctx, query, token).Scan(&t.Identifier, &t.Token, &t.Expires); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

// Delete removes a token. Deleting a token that is already gone is not an error.
func (r *PasswordResetRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete password reset token: %w", err)
	}
	return nil
}

// ResetPassword updates the user's password and deletes the token in one
// transaction. If another request consumed the token first the transaction
// rolls back and models.ErrNotFound is returned.
func (r *PasswordResetRepository) ResetPassword(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $2 WHERE id = $3`,
			passwordHash, changedAt, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrUserNotFound
		}

		result, err = tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE token = $1`, token)
		if err != nil {
			return fmt.Errorf("failed to delete password reset token: %w", err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// CleanupExpired deletes tokens whose expiry is before now.
func (r *PasswordResetRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
