package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// SnapshotStore represents a store of validator set snapshots
type SnapshotStore interface {
	// GetSnapshot returns the snapshot of slot, or false if none is held.
	GetSnapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, bool, error)

	// PutSnapshot publishes a snapshot. Publishing a different snapshot
	// for an already published slot fails.
	PutSnapshot(snapshot *externalapi.ValidatorSetSnapshot) error

	// PruneBefore deletes the snapshots of every slot lower than slot.
	PruneBefore(slot uint64) error
}
