package memory

import (
	"context"
	"errors"
	"sort"

	"pet-custody-escrow/internal/domain/escrow"
)

type escrowRepo struct {
	store *Store
}

func NewEscrowRepo(s *Store) escrow.Repository {
	return &escrowRepo{store: s}
}

func (r *escrowRepo) Create(ctx context.Context, a escrow.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if a.ID == "" {
		return errors.New("escrow id required")
	}
	if _, exists := r.store.escrowsByID[a.ID]; exists {
		return errors.New("escrow already exists")
	}
	for _, existing := range r.store.escrowsByID {
		if existing.AgreementID == a.AgreementID {
			return errors.New("agreement already has an escrow account")
		}
	}

	r.store.escrowsByID[a.ID] = a
	return nil
}

func (r *escrowRepo) Update(ctx context.Context, a escrow.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.escrowsByID[a.ID]; !ok {
		return escrow.ErrNotFound
	}
	r.store.escrowsByID[a.ID] = a
	return nil
}

func (r *escrowRepo) GetByID(ctx context.Context, id string) (escrow.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.escrowsByID[id]
	if !ok {
		return escrow.Account{}, escrow.ErrNotFound
	}
	return a, nil
}

func (r *escrowRepo) GetByAgreement(ctx context.Context, agreementID string) (escrow.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, a := range r.store.escrowsByID {
		if a.AgreementID == agreementID {
			return a, nil
		}
	}
	return escrow.Account{}, escrow.ErrNotFound
}

func (r *escrowRepo) ListUnsettled(ctx context.Context) ([]escrow.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]escrow.Account, 0)
	for _, a := range r.store.escrowsByID {
		switch {
		case a.Status == escrow.StatusPendingHold && a.HoldTxRef != "":
			out = append(out, a)
		case a.Status == escrow.StatusHeld:
			// Con o sin salida en vuelo: un HELD sin ExitTxRef puede
			// pertenecer a un agreement ya cerrado (ver reconciler.Settler).
			out = append(out, a)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
