package transactionhelper

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/constants"
)

// NewTransaction returns a new transaction with the given inputs and outputs
func NewTransaction(version uint16, inputs []*externalapi.DomainTransactionInput,
	outputs []*externalapi.DomainTransactionOutput) *externalapi.DomainTransaction {
	return &externalapi.DomainTransaction{
		Version:  version,
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: 0,
		Payload:  []byte{},
	}
}

// NewSpendTransaction returns a transaction spending the given outpoints
// into a single output of the given value. The payload distinguishes
// otherwise identical spends.
func NewSpendTransaction(outpoints []externalapi.DomainOutpoint, value uint64,
	scriptPublicKey []byte, payload []byte) *externalapi.DomainTransaction {

	inputs := make([]*externalapi.DomainTransactionInput, len(outpoints))
	for i, outpoint := range outpoints {
		inputs[i] = &externalapi.DomainTransactionInput{
			PreviousOutpoint: outpoint,
			SignatureScript:  []byte{},
			Sequence:         0,
		}
	}
	outputs := []*externalapi.DomainTransactionOutput{{Value: value, ScriptPublicKey: scriptPublicKey}}
	tx := NewTransaction(constants.MaxTransactionVersion, inputs, outputs)
	tx.Payload = payload
	return tx
}
