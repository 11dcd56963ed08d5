package eventlog

type FactType string

const (
	FactUserRegistered FactType = "USER_REGISTERED"
	FactPetListed      FactType = "PET_LISTED"

	FactAdoptionRequested FactType = "ADOPTION_REQUESTED"
	FactAdoptionApproved  FactType = "ADOPTION_APPROVED"
	FactAdoptionRejected  FactType = "ADOPTION_REJECTED"
	FactAdoptionCancelled FactType = "ADOPTION_CANCELLED"

	FactCustodyCreated    FactType = "CUSTODY_CREATED"
	FactCustodyActivated  FactType = "CUSTODY_ACTIVATED"
	FactCustodyCompleted  FactType = "CUSTODY_COMPLETED"
	FactCustodyTerminated FactType = "CUSTODY_TERMINATED"

	FactEscrowHeld     FactType = "ESCROW_HELD"
	FactEscrowReleased FactType = "ESCROW_RELEASED"
	FactEscrowRefunded FactType = "ESCROW_REFUNDED"
)

var knownTypes = map[FactType]struct{}{
	FactUserRegistered:    {},
	FactPetListed:         {},
	FactAdoptionRequested: {},
	FactAdoptionApproved:  {},
	FactAdoptionRejected:  {},
	FactAdoptionCancelled: {},
	FactCustodyCreated:    {},
	FactCustodyActivated:  {},
	FactCustodyCompleted:  {},
	FactCustodyTerminated: {},
	FactEscrowHeld:        {},
	FactEscrowReleased:    {},
	FactEscrowRefunded:    {},
}

func (t FactType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}
