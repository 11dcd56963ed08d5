package adoption

import "context"

type Repository interface {
	Create(ctx context.Context, r Request) error
	Update(ctx context.Context, r Request) error
	GetByID(ctx context.Context, id string) (Request, error)

	// HasOpenRequestForPet responde si la mascota tiene un request no
	// terminal. Lo consume el workflow orchestrator como guard cross-entity.
	HasOpenRequestForPet(ctx context.Context, petID string) (bool, error)
}
