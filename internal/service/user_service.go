package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/repository"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

// EditInfoInput holds profile fields a user may change. Blank fields keep their current value.
type EditInfoInput struct {
	FirstName string
	LastName  string
	Country   string
	City      string
}

// UserService serves account reads and profile edits.
type UserService struct {
	users  repository.UserRepository
	logger *zap.Logger
}

// NewUserService builds the service.
func NewUserService(users repository.UserRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, logger: logger}
}

// Me returns the account behind the authenticated token.
func (s *UserService) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.get(ctx, userID)
}

// Details returns any account by id.
func (s *UserService) Details(ctx context.Context, userID string) (*domain.User, error) {
	return s.get(ctx, userID)
}

// EditInfo updates the caller's profile.
func (s *UserService) EditInfo(ctx context.Context, userID string, in EditInfoInput) (*domain.User, error) {
	user, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.FirstName = keep(user.FirstName, in.FirstName)
	user.LastName = keep(user.LastName, in.LastName)
	user.Country = keep(user.Country, in.Country)
	user.City = keep(user.City, in.City)

	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}
	s.logger.Info("user profile updated", zap.String("user_id", user.ID))
	return user, nil
}

// List returns every account with the given role.
func (s *UserService) List(ctx context.Context, role domain.Role) ([]domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": string(role)})
	}
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

func (s *UserService) get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("get user: %w", err))
	}
	return user, nil
}

func keep(current, next string) string {
	if v := strings.TrimSpace(next); v != "" {
		return v
	}
	return current
}
