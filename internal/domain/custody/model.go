package custody

import "time"

// Status del agreement. PENDING -> ACTIVE -> (COMPLETED | TERMINATED).
// @Enum PENDING, ACTIVE, COMPLETED, TERMINATED
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusActive     Status = "ACTIVE"
	StatusCompleted  Status = "COMPLETED"
	StatusTerminated Status = "TERMINATED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusTerminated
}

// Agreement es un acuerdo de custodia temporal: el keeper cuida la mascota
// del owner entre StartDate y EndDate, con un depósito retenido en escrow.
type Agreement struct {
	ID    string
	PetID string

	OwnerID  string
	KeeperID string

	DepositAmount float64
	StartDate     time.Time
	EndDate       time.Time
	Terms         string

	Status Status

	// TerminationReason solo aplica a TERMINATED.
	TerminationReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}
