package pets

import "context"

type Repository interface {
	Create(ctx context.Context, p Pet) error
	GetByID(ctx context.Context, id string) (Pet, error)
	List(ctx context.Context) ([]Pet, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Pet, error)

	// UpdateStatus muta SOLO el status (y UpdatedAt). Reservado a los engines.
	UpdateStatus(ctx context.Context, id string, status Status) error
}
