package memory

import (
	"context"
	"errors"
	"strings"

	"pet-custody-escrow/internal/domain/users"
)

var ErrNotFound = errors.New("not found")

type usersRepo struct {
	store *Store
}

func NewUsersRepo(s *Store) users.Repository {
	return &usersRepo{store: s}
}

func (r *usersRepo) Create(ctx context.Context, u users.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if u.ID == "" {
		return errors.New("user id required")
	}
	if _, exists := r.store.usersByID[u.ID]; exists {
		return errors.New("user already exists")
	}
	for _, existing := range r.store.usersByID {
		if strings.EqualFold(existing.Email, u.Email) {
			return errors.New("email already registered")
		}
	}

	r.store.usersByID[u.ID] = u
	return nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (users.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.usersByID[id]
	if !ok {
		return users.User{}, ErrNotFound
	}
	return u, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (users.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.usersByID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return users.User{}, ErrNotFound
}
