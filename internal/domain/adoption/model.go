package adoption

import "time"

// Status del request. PENDING -> (APPROVED | REJECTED | CANCELLED).
// @Enum PENDING, APPROVED, REJECTED, CANCELLED
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s != StatusPending
}

// Request es una solicitud de adopción. La adopción no mueve fondos: es un
// camino financiero distinto al de custody (sin escrow).
type Request struct {
	ID    string
	PetID string

	AdopterID string
	OwnerID   string

	Notes string

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}
