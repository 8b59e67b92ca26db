package externalapi

import "fmt"

// UTXOStatus is the lifecycle position of a spendable output.
type UTXOStatus uint8

// Output statuses. Transitions only move forward:
// Unspent -> Reserved -> Final -> Archived.
const (
	UTXOStatusUnspent UTXOStatus = iota
	UTXOStatusReserved
	UTXOStatusFinal
	UTXOStatusArchived
)

func (s UTXOStatus) String() string {
	switch s {
	case UTXOStatusUnspent:
		return "Unspent"
	case UTXOStatusReserved:
		return "Reserved"
	case UTXOStatusFinal:
		return "Final"
	case UTXOStatusArchived:
		return "Archived"
	}
	return fmt.Sprintf("UTXOStatus(%d)", uint8(s))
}

// OutputState is the persisted state of a spendable output.
type OutputState struct {
	Amount          uint64
	ScriptPublicKey []byte
	Status          UTXOStatus

	// SpenderID is the reserving, finalized or archiving transaction. It
	// is meaningless while Unspent.
	SpenderID DomainTransactionID

	// ReservedAt is the unix time in seconds of the current reservation.
	ReservedAt int64

	// ArchivedAt is the height of the checkpoint block that archived the
	// output.
	ArchivedAt uint64
}

// Clone returns a copy of the state.
func (s *OutputState) Clone() *OutputState {
	clone := *s
	clone.ScriptPublicKey = append([]byte(nil), s.ScriptPublicKey...)
	return &clone
}

func (s *OutputState) String() string {
	switch s.Status {
	case UTXOStatusUnspent:
		return "Unspent"
	case UTXOStatusArchived:
		return fmt.Sprintf("Archived(%s, %d)", s.SpenderID, s.ArchivedAt)
	}
	return fmt.Sprintf("%s(%s)", s.Status, s.SpenderID)
}
