package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrUnavailable indica una falla transitoria del ledger (reintentar con backoff).
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrInsufficientFunds es permanente: la cuenta origen no cubre el monto.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidKey es permanente: la public key no existe o está mal formada.
	ErrInvalidKey = errors.New("invalid ledger key")
)

// Status es el estado de finalidad de una transacción en el ledger.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusPending   Status = "PENDING"
	StatusFailed    Status = "FAILED"
)

// Gateway abstrae el ledger externo (Stellar) como servicio opaco.
//
// Todas las operaciones son idempotentes dada la misma intención lógica:
// un retry de SubmitHold con los mismos parámetros no puede duplicar fondos.
// La dedupe se ancla en la idempotency key derivada de escrowID + operación,
// que el adapter envía como memo de la transacción.
//
// La confirmación es asíncrona y puede tardar un tiempo no acotado; los
// callers deben hacer poll con Confirm, nunca asumir finalidad síncrona.
type Gateway interface {
	// SubmitHold retiene `amount` desde fromKey. Devuelve la referencia de
	// transacción (posiblemente aún pendiente de confirmación).
	SubmitHold(ctx context.Context, amount float64, fromKey, escrowID string) (string, error)

	// SubmitRelease libera los fondos retenidos por holdRef hacia toKey.
	// Sirve tanto para release como para refund: cambia solo el destino.
	SubmitRelease(ctx context.Context, holdRef, toKey, escrowID string) (string, error)

	// Confirm observa la finalidad de una transacción previamente enviada.
	Confirm(ctx context.Context, txRef string) (Status, error)
}

// Operaciones conocidas para derivar idempotency keys. Release y refund
// comparten OpRelease: ambas salen del mismo hold y son mutuamente
// excluyentes por escrow, así que un solo memo de salida por cuenta es
// justamente lo que impide una doble salida del lado del ledger.
const (
	OpHold    = "hold"
	OpRelease = "release"
)

// IdempotencyKey deriva una key determinística para (escrow, operación).
// 32 bytes hex: cabe como MEMO_HASH de Stellar.
func IdempotencyKey(escrowID, op string) string {
	sum := sha256.Sum256([]byte(escrowID + "|" + op))
	return hex.EncodeToString(sum[:])
}
