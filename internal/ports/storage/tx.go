package storage

import "context"

// TxRunner ejecuta fn dentro de una transacción del store.
//
// Los repos detectan la transacción vía el ctx que recibe fn, de modo que
// una transición de estado y su fact en el event log se escriben juntos:
// o ambos quedan, o ninguno. Es la pieza que hace "committed" a una transición.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
