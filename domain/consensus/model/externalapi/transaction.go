package externalapi

import (
	"encoding/hex"
	"fmt"
)

// DomainTransaction represents a transaction spending UTXOs.
type DomainTransaction struct {
	Version  uint16
	Inputs   []*DomainTransactionInput
	Outputs  []*DomainTransactionOutput
	LockTime uint64
	Payload  []byte
}

// DomainTransactionInput represents a transaction input.
type DomainTransactionInput struct {
	PreviousOutpoint DomainOutpoint
	SignatureScript  []byte
	Sequence         uint64
}

// DomainOutpoint identifies a transaction output.
type DomainOutpoint struct {
	TransactionID DomainTransactionID
	Index         uint32
}

// String stringifies an outpoint.
func (op DomainOutpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TransactionID, op.Index)
}

// Less orders outpoints by transaction ID and then by index.
func (op DomainOutpoint) Less(other DomainOutpoint) bool {
	if op.TransactionID != other.TransactionID {
		return op.TransactionID.Less(other.TransactionID)
	}
	return op.Index < other.Index
}

// DomainTransactionOutput represents a transaction output.
type DomainTransactionOutput struct {
	Value           uint64
	ScriptPublicKey []byte
}

// DomainTransactionID represents the ID of a transaction.
type DomainTransactionID DomainHash

// String stringifies a transaction ID.
func (id DomainTransactionID) String() string {
	return hex.EncodeToString(id[:])
}

// Less returns whether id sorts before other.
func (id DomainTransactionID) Less(other DomainTransactionID) bool {
	return DomainHash(id).Less(DomainHash(other))
}

// Clone returns a deep copy of the transaction.
func (tx *DomainTransaction) Clone() *DomainTransaction {
	inputs := make([]*DomainTransactionInput, len(tx.Inputs))
	for i, input := range tx.Inputs {
		inputs[i] = &DomainTransactionInput{
			PreviousOutpoint: input.PreviousOutpoint,
			SignatureScript:  append([]byte(nil), input.SignatureScript...),
			Sequence:         input.Sequence,
		}
	}
	outputs := make([]*DomainTransactionOutput, len(tx.Outputs))
	for i, output := range tx.Outputs {
		outputs[i] = &DomainTransactionOutput{
			Value:           output.Value,
			ScriptPublicKey: append([]byte(nil), output.ScriptPublicKey...),
		}
	}
	return &DomainTransaction{
		Version:  tx.Version,
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: tx.LockTime,
		Payload:  append([]byte(nil), tx.Payload...),
	}
}

// Outpoints returns the outpoints spent by the transaction, in input order.
func (tx *DomainTransaction) Outpoints() []DomainOutpoint {
	outpoints := make([]DomainOutpoint, len(tx.Inputs))
	for i, input := range tx.Inputs {
		outpoints[i] = input.PreviousOutpoint
	}
	return outpoints
}
