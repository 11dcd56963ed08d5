package custody

import "context"

type Repository interface {
	Create(ctx context.Context, a Agreement) error
	Update(ctx context.Context, a Agreement) error
	GetByID(ctx context.Context, id string) (Agreement, error)

	// HasOpenAgreementForPet responde si la mascota tiene un agreement no
	// terminal. Lo consume el workflow orchestrator como guard cross-entity.
	HasOpenAgreementForPet(ctx context.Context, petID string) (bool, error)
}
