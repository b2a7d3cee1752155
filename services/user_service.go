package services

import (
	"context"
	"fmt"

	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
	"github.com/akinalp/corkboard/repository"
)

// UserService keeps the local user rows in step with token claims.
type UserService interface {
	// Sync upserts the user described by claims and returns the stored row.
	Sync(ctx context.Context, claims *models.TokenClaims) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
}

// NewUserService is the constructor.
func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) Sync(ctx context.Context, claims *models.TokenClaims) (*models.User, error) {
	user := claims.User()
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistence, err)
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
