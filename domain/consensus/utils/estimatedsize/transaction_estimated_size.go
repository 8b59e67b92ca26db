package estimatedsize

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const (
	lengthPrefixSize = 8 // uint64
	outpointSize     = externalapi.DomainHashSize + 4
	inputFixedSize   = outpointSize + lengthPrefixSize + 8
	outputFixedSize  = 8 + lengthPrefixSize
)

// TransactionEstimatedSerializedSize is the size of the full serialization
// of a transaction, signature scripts included. It is computed without
// serializing so that oversized transactions are rejected cheaply.
func TransactionEstimatedSerializedSize(tx *externalapi.DomainTransaction) uint64 {
	size := uint64(2) + lengthPrefixSize
	for _, input := range tx.Inputs {
		size += inputFixedSize + uint64(len(input.SignatureScript))
	}

	size += lengthPrefixSize
	for _, output := range tx.Outputs {
		size += TransactionOutputEstimatedSerializedSize(output)
	}

	// lock time and payload
	return size + 8 + lengthPrefixSize + uint64(len(tx.Payload))
}

// TransactionOutputEstimatedSerializedSize is the serialized size of a
// single output.
func TransactionOutputEstimatedSerializedSize(output *externalapi.DomainTransactionOutput) uint64 {
	return outputFixedSize + uint64(len(output.ScriptPublicKey))
}
