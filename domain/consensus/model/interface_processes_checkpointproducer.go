package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// CheckpointProducer runs the slot schedule that packages final
// transactions into checkpoint blocks
type CheckpointProducer interface {
	// HandleBlock validates a candidate block received from a peer and
	// collects it for its slot.
	HandleBlock(block *externalapi.CheckpointBlock) error

	// ValidateBlock checks a candidate block against the local tip.
	ValidateBlock(block *externalapi.CheckpointBlock) error

	// ProduceCandidate builds and signs the local candidate for slot.
	ProduceCandidate(slot uint64) (*externalapi.CheckpointBlock, error)

	// CommitSlot commits the canonical candidate collected for slot.
	CommitSlot(slot uint64) (*externalapi.CheckpointBlock, error)

	SlotState(slot uint64) SlotState
	Tip() (*externalapi.CheckpointBlock, bool, error)

	FinalityListener
	Start() error
	Stop()
}

// SlotState is the position of a slot in the checkpoint schedule.
type SlotState uint8

// Slot states. A slot moves forward only.
const (
	SlotStateAwaitingSlot SlotState = iota
	SlotStateSorting
	SlotStateSelected
	SlotStateCommitted
)

func (s SlotState) String() string {
	switch s {
	case SlotStateAwaitingSlot:
		return "AwaitingSlot"
	case SlotStateSorting:
		return "Sorting"
	case SlotStateSelected:
		return "Selected"
	case SlotStateCommitted:
		return "Committed"
	}
	return "Unknown"
}
