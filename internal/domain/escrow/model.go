package escrow

import "time"

// Status del escrow. PENDING_HOLD -> HELD -> (RELEASED | REFUNDED).
// Los estados terminales son finales: no hay re-entrada.
// @Enum PENDING_HOLD, HELD, RELEASED, REFUNDED
type Status string

const (
	StatusPendingHold Status = "PENDING_HOLD"
	StatusHeld        Status = "HELD"
	StatusReleased    Status = "RELEASED"
	StatusRefunded    Status = "REFUNDED"
)

func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// ExitKind distingue la salida en curso desde HELD.
type ExitKind string

const (
	ExitRelease ExitKind = "release"
	ExitRefund  ExitKind = "refund"
)

// Account mantiene los fondos depositados de UN custody agreement.
//
// El status nunca reporta HELD antes de que el ledger confirme el hold:
// HoldTxRef puede existir con status PENDING_HOLD (confirmación en vuelo,
// el reconciler la retoma). Lo mismo aplica a ExitTxRef con status HELD.
type Account struct {
	ID          string
	AgreementID string
	PetID       string

	// DepositorID es el keeper: quien deposita y a quien vuelve un refund.
	DepositorID string

	Amount float64

	Status Status

	HoldTxRef string
	ExitTxRef string
	ExitKind  ExitKind
	// ExitToKey persiste el destino del release en curso, para que un retry
	// (manual o del reconciler) no dependa de volver a resolver la key.
	ExitToKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}
