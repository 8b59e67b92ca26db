package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// ValidatorSetManager tracks the eligible validators of every slot
type ValidatorSetManager interface {
	// Snapshot returns the published snapshot of slot. It fails with
	// ruleerrors.ErrSnapshotUnavailable if the snapshot is not held.
	Snapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, error)

	// CurrentSnapshot returns the snapshot of the current slot,
	// publishing it if needed.
	CurrentSnapshot() (*externalapi.ValidatorSetSnapshot, error)

	// PublishSnapshot builds the snapshot of slot from the registry and
	// the eligibility source, and publishes it. Publishing an already
	// published slot returns the existing snapshot.
	PublishSnapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, error)

	CurrentSlot() uint64
	LocalValidatorID() externalapi.ValidatorID
}
