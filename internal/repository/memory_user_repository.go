package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/domain"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

// memoryUserRepository keeps users in process memory. It backs local runs without Postgres.
type memoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]domain.User
	byEmail    map[string]string
	nextExtID  int64
	bcryptCost int
}

// NewMemoryUserRepository returns an in-memory implementation.
func NewMemoryUserRepository(bcryptCost int) UserRepository {
	return &memoryUserRepository{
		byID:       make(map[string]domain.User),
		byEmail:    make(map[string]string),
		bcryptCost: bcryptCost,
	}
}

func (r *memoryUserRepository) Save(_ context.Context, user *domain.User) error {
	hash := user.PasswordHash
	plain, staged := user.PendingPassword()
	if staged {
		hashed, err := auth.HashPassword(plain, r.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hash = hashed
	}
	if hash == "" {
		return errors.New("user has no password")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := user.Email
	now := time.Now().UTC()
	if user.ID == "" {
		if _, taken := r.byEmail[email]; taken {
			return apperrors.ErrDuplicateUser
		}
		r.nextExtID++
		user.ID = uuid.NewString()
		user.ExternalID = r.nextExtID
		user.CreatedAt = now
	} else {
		prev, ok := r.byID[user.ID]
		if !ok {
			return ErrNotFound
		}
		if owner, taken := r.byEmail[email]; taken && owner != user.ID {
			return apperrors.ErrDuplicateUser
		}
		delete(r.byEmail, prev.Email)
	}
	user.UpdatedAt = now
	if staged {
		user.ApplyPasswordHash(hash)
	}

	r.byID[user.ID] = *user
	r.byEmail[email] = user.ID
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *memoryUserRepository) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]domain.User, 0)
	for _, u := range r.byID {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ExternalID < users[j].ExternalID })
	return users, nil
}
