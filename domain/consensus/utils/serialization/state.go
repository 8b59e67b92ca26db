package serialization

import (
	"bytes"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const maxSnapshotValidators = 100_000

// OutputStateToBytes returns the serialization of an output state.
func OutputStateToBytes(state *externalapi.OutputState) []byte {
	buf := &bytes.Buffer{}
	mustSerialize(WriteElements(buf, state.Amount, state.ScriptPublicKey, uint8(state.Status),
		state.SpenderID, state.ReservedAt, state.ArchivedAt))
	return buf.Bytes()
}

// BytesToOutputState is the inverse of OutputStateToBytes.
func BytesToOutputState(data []byte) (*externalapi.OutputState, error) {
	r := bytes.NewReader(data)
	state := &externalapi.OutputState{}
	var status uint8
	err := ReadElements(r, &state.Amount, &state.ScriptPublicKey, &status,
		&state.SpenderID, &state.ReservedAt, &state.ArchivedAt)
	if err != nil {
		return nil, err
	}
	state.Status = externalapi.UTXOStatus(status)
	return state, ensureConsumed(r)
}

// SnapshotToBytes returns the serialization of a validator set snapshot.
func SnapshotToBytes(snapshot *externalapi.ValidatorSetSnapshot) []byte {
	buf := &bytes.Buffer{}
	validators := snapshot.Validators()
	mustSerialize(WriteElements(buf, snapshot.Slot(), uint64(len(validators))))
	for _, validator := range validators {
		mustSerialize(WriteElements(buf, validator.ID, validator.PublicKey, validator.Weight,
			validator.VRFPublicKey))
	}
	return buf.Bytes()
}

// BytesToSnapshot is the inverse of SnapshotToBytes.
func BytesToSnapshot(data []byte) (*externalapi.ValidatorSetSnapshot, error) {
	r := bytes.NewReader(data)
	var slot uint64
	err := ReadElement(r, &slot)
	if err != nil {
		return nil, err
	}
	count, err := ReadCount(r, maxSnapshotValidators)
	if err != nil {
		return nil, err
	}
	validators := make([]*externalapi.Validator, count)
	for i := range validators {
		validator := &externalapi.Validator{}
		err = ReadElements(r, &validator.ID, &validator.PublicKey, &validator.Weight, &validator.VRFPublicKey)
		if err != nil {
			return nil, err
		}
		validators[i] = validator
	}
	err = ensureConsumed(r)
	if err != nil {
		return nil, err
	}
	return externalapi.NewValidatorSetSnapshot(slot, validators)
}
