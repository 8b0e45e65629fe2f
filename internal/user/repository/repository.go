package repository

import (
	"context"

	"docshare/internal/user/model"
)

// Repository is the identity store.
type Repository interface {
	Create(ctx context.Context, user *model.User) error
	// FindByLogin matches login against the lower-cased email or the exact username.
	FindByLogin(ctx context.Context, login string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}
