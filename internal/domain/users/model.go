package users

import "time"

// Role define los roles globales soportados.
// @Enum ADMIN, SHELTER, USER
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleShelter Role = "SHELTER"
	RoleUser    Role = "USER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleShelter, RoleUser:
		return true
	}
	return false
}

// User representa una identidad del sistema. El rol es inmutable después de
// creado (mutarlo es asunto del account service externo, no de este core).
type User struct {
	ID string

	Email     string
	FirstName string
	LastName  string

	Role Role

	// StellarPublicKey es la cuenta del usuario en el ledger externo.
	// Opcional: solo se exige para operar escrow (depositar o recibir fondos).
	StellarPublicKey string

	CreatedAt time.Time
}
