package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"docshare/internal/user/model"
	"docshare/pkg/apperror"
)

// MemoryRepository keeps users in process memory. It backs the memory
// database driver used for local runs and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*model.User
	order []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*model.User)}
}

func (r *MemoryRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Email == strings.ToLower(user.Email) {
			return fmt.Errorf("users_email_key: %w", apperror.ErrDuplicate)
		}
		if u.Username == user.Username {
			return fmt.Errorf("users_username_key: %w", apperror.ErrDuplicate)
		}
	}
	cp := *user
	cp.Email = strings.ToLower(cp.Email)
	r.byID[cp.ID] = &cp
	r.order = append(r.order, cp.ID)
	return nil
}

func (r *MemoryRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	if u, err := r.FindByEmail(ctx, login); err == nil {
		return u, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if u := r.byID[id]; u.Username == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.ToLower(email)
	for _, id := range r.order {
		if u := r.byID[id]; u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
