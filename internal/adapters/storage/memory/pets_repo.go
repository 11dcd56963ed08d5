package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"pet-custody-escrow/internal/domain/pets"
)

type petsRepo struct {
	store *Store
	now   func() time.Time
}

func NewPetsRepo(s *Store) pets.Repository {
	return &petsRepo{store: s, now: time.Now}
}

func (r *petsRepo) Create(ctx context.Context, p pets.Pet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if p.ID == "" {
		return errors.New("pet id required")
	}
	if _, exists := r.store.petsByID[p.ID]; exists {
		return errors.New("pet already exists")
	}

	r.store.petsByID[p.ID] = p
	return nil
}

func (r *petsRepo) GetByID(ctx context.Context, id string) (pets.Pet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.petsByID[id]
	if !ok {
		return pets.Pet{}, ErrNotFound
	}
	return p, nil
}

func (r *petsRepo) List(ctx context.Context) ([]pets.Pet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]pets.Pet, 0, len(r.store.petsByID))
	for _, p := range r.store.petsByID {
		out = append(out, p)
	}
	sortPets(out)
	return out, nil
}

func (r *petsRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]pets.Pet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]pets.Pet, 0)
	for _, p := range r.store.petsByID {
		if p.OwnerUserID == ownerUserID {
			out = append(out, p)
		}
	}
	sortPets(out)
	return out, nil
}

func (r *petsRepo) UpdateStatus(ctx context.Context, id string, status pets.Status) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.petsByID[id]
	if !ok {
		return ErrNotFound
	}

	p.Status = status
	p.UpdatedAt = r.now()
	r.store.petsByID[id] = p
	return nil
}

// Orden estable para listados: más recientes primero, ID como desempate.
func sortPets(out []pets.Pet) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}
