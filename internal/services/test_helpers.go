package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/google/uuid"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// MockPasswordResetRepository implements PasswordResetRepository for testing
type MockPasswordResetRepository struct {
	CreateFunc         func(ctx context.Context, token *models.PasswordResetToken) error
	GetByTokenFunc     func(ctx context.Context, token string) (*models.PasswordResetToken, error)
	DeleteFunc         func(ctx context.Context, token string) error
	ResetPasswordFunc  func(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error
	CleanupExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockPasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordResetRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	return nil
}

func (m *MockPasswordResetRepository) ResetPassword(ctx context.Context, token, userID, passwordHash string, changedAt time.Time) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, userID, passwordHash, changedAt)
	}
	return nil
}

func (m *MockPasswordResetRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockMailer records every message it is asked to send
type MockMailer struct {
	mu       sync.Mutex
	Messages []Message
	SendFunc func(ctx context.Context, msg Message) error
}

func (m *MockMailer) Send(ctx context.Context, msg Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a copy of the recorded messages
func (m *MockMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.Messages...)
}

// NewTestUser creates a user with the given fields for tests
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InMemoryUserRepository is a map-backed UserRepository for end-to-end tests
type InMemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (r *InMemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *InMemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return nil, models.ErrConflict
	}
	cp := *user
	cp.ID = uuid.New().String()
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.byID[cp.ID] = &cp
	r.byEmail[cp.Email] = cp.ID
	out := cp
	return &out, nil
}

// Count returns the number of stored users
func (r *InMemoryUserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// InMemoryPasswordResetRepository is a map-backed PasswordResetRepository that
// updates passwords in the paired InMemoryUserRepository
type InMemoryPasswordResetRepository struct {
	mu     sync.Mutex
	users  *InMemoryUserRepository
	tokens map[string]models.PasswordResetToken
}

func NewInMemoryPasswordResetRepository(users *InMemoryUserRepository) *InMemoryPasswordResetRepository {
	return &InMemoryPasswordResetRepository{
		users:  users,
		tokens: make(map[string]models.PasswordResetToken),
	}
}

func (r *InMemoryPasswordResetRepository) Create(_ context.Context, token *models.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.Token]; exists {
		return models.ErrConflict
	}
	r.tokens[token.Token] = *token
	return nil
}

func (r *InMemoryPasswordResetRepository) GetByToken(_ context.Context, token string) (*models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (r *InMemoryPasswordResetRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *InMemoryPasswordResetRepository) ResetPassword(_ context.Context, token, userID, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token]; !ok {
		return models.ErrNotFound
	}

	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.byID[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &changedAt
	u.UpdatedAt = changedAt

	delete(r.tokens, token)
	return nil
}

func (r *InMemoryPasswordResetRepository) CleanupExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.tokens {
		if t.IsExpired(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

// Tokens returns the stored tokens for userID
func (r *InMemoryPasswordResetRepository) Tokens(userID string) []models.PasswordResetToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PasswordResetToken, 0)
	for _, t := range r.tokens {
		if t.Identifier == userID {
			out = append(out, t)
		}
	}
	return out
}
