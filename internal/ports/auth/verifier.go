package auth

import "context"

// AuthVerifier valida un bearer token emitido por el identity provider y
// devuelve los claims o error. nil => modo dev (headers de debug).
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
