package pets

import "time"

// Species define las especies soportadas.
// @Enum DOG, CAT, BIRD
type Species string

const (
	SpeciesDog  Species = "DOG"
	SpeciesCat  Species = "CAT"
	SpeciesBird Species = "BIRD"
)

func (s Species) Valid() bool {
	switch s {
	case SpeciesDog, SpeciesCat, SpeciesBird:
		return true
	}
	return false
}

// Status es el estado derivado de la mascota. Nunca lo setea un caller
// directamente: solo los engines (adoption/custody) lo mutan al transicionar.
// @Enum AVAILABLE, PENDING, ADOPTED, IN_CUSTODY
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusPending   Status = "PENDING"
	StatusAdopted   Status = "ADOPTED"
	StatusInCustody Status = "IN_CUSTODY"
)

// Pet representa una mascota listada por un shelter.
type Pet struct {
	ID          string
	OwnerUserID string

	Name        string
	Species     Species
	Breed       string
	Age         int
	Description string

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}
