package auth

// Role es el rol global del usuario autenticado.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleShelter Role = "SHELTER"
	RoleUser    Role = "USER"
)

// Claims representa la información extraída del token.
type Claims struct {
	UserID string
	Email  string
	Role   Role
}
