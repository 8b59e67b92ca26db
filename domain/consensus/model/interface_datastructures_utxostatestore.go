package model

import "github.com/timecoin/timed/domain/consensus/model/externalapi"

// UTXOStore represents a store of output states
type UTXOStore interface {
	// GetOutputState returns the state of outpoint, or false if the
	// output does not exist.
	GetOutputState(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, bool, error)

	// PutOutputState writes a single output state.
	PutOutputState(outpoint externalapi.DomainOutpoint, state *externalapi.OutputState) error

	// PutOutputStates writes several output states atomically.
	PutOutputStates(states map[externalapi.DomainOutpoint]*externalapi.OutputState) error

	// ReservedOutputs returns every output currently Reserved.
	ReservedOutputs() (map[externalapi.DomainOutpoint]*externalapi.OutputState, error)
}
