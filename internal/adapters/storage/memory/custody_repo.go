package memory

import (
	"context"
	"errors"

	"pet-custody-escrow/internal/domain/custody"
)

type custodyRepo struct {
	store *Store
}

func NewCustodyRepo(s *Store) custody.Repository {
	return &custodyRepo{store: s}
}

func (r *custodyRepo) Create(ctx context.Context, a custody.Agreement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if a.ID == "" {
		return errors.New("agreement id required")
	}
	if _, exists := r.store.agreementsByID[a.ID]; exists {
		return errors.New("agreement already exists")
	}

	r.store.agreementsByID[a.ID] = a
	return nil
}

func (r *custodyRepo) Update(ctx context.Context, a custody.Agreement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.agreementsByID[a.ID]; !ok {
		return custody.ErrNotFound
	}
	r.store.agreementsByID[a.ID] = a
	return nil
}

func (r *custodyRepo) GetByID(ctx context.Context, id string) (custody.Agreement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.agreementsByID[id]
	if !ok {
		return custody.Agreement{}, custody.ErrNotFound
	}
	return a, nil
}

func (r *custodyRepo) HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, a := range r.store.agreementsByID {
		if a.PetID == petID && !a.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}
