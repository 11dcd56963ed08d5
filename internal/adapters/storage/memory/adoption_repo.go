package memory

import (
	"context"
	"errors"

	"pet-custody-escrow/internal/domain/adoption"
)

type adoptionRepo struct {
	store *Store
}

func NewAdoptionRepo(s *Store) adoption.Repository {
	return &adoptionRepo{store: s}
}

func (r *adoptionRepo) Create(ctx context.Context, req adoption.Request) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if req.ID == "" {
		return errors.New("request id required")
	}
	if _, exists := r.store.requestsByID[req.ID]; exists {
		return errors.New("request already exists")
	}

	r.store.requestsByID[req.ID] = req
	return nil
}

func (r *adoptionRepo) Update(ctx context.Context, req adoption.Request) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.requestsByID[req.ID]; !ok {
		return adoption.ErrNotFound
	}
	r.store.requestsByID[req.ID] = req
	return nil
}

func (r *adoptionRepo) GetByID(ctx context.Context, id string) (adoption.Request, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	req, ok := r.store.requestsByID[id]
	if !ok {
		return adoption.Request{}, adoption.ErrNotFound
	}
	return req, nil
}

func (r *adoptionRepo) HasOpenRequestForPet(ctx context.Context, petID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, req := range r.store.requestsByID {
		if req.PetID == petID && !req.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}
