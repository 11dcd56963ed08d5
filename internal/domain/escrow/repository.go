package escrow

import "context"

type Repository interface {
	Create(ctx context.Context, a Account) error
	Update(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	GetByAgreement(ctx context.Context, agreementID string) (Account, error)

	// ListUnsettled devuelve las cuentas no asentadas que mira el reconciler:
	// PENDING_HOLD con HoldTxRef en vuelo, y todo HELD (la salida puede estar
	// en vuelo, o pendiente de empujar si el agreement cerró entre medio).
	ListUnsettled(ctx context.Context) ([]Account, error)
}
