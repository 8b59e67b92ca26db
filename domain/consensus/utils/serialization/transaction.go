package serialization

import (
	"bytes"
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const (
	maxTransactionInputs  = 10_000
	maxTransactionOutputs = 10_000
)

// SerializeTransaction writes tx to w. Signature scripts are omitted when
// includeSignatureScripts is false, which is the encoding transaction IDs
// are computed over.
func SerializeTransaction(w io.Writer, tx *externalapi.DomainTransaction, includeSignatureScripts bool) error {
	err := WriteElements(w, tx.Version, uint64(len(tx.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		err = WriteElement(w, input.PreviousOutpoint)
		if err != nil {
			return err
		}
		signatureScript := input.SignatureScript
		if !includeSignatureScripts {
			signatureScript = nil
		}
		err = WriteElements(w, signatureScript, input.Sequence)
		if err != nil {
			return err
		}
	}

	err = WriteElement(w, uint64(len(tx.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range tx.Outputs {
		err = WriteElements(w, output.Value, output.ScriptPublicKey)
		if err != nil {
			return err
		}
	}
	return WriteElements(w, tx.LockTime, tx.Payload)
}

// DeserializeTransaction reads a transaction written by SerializeTransaction
// with signature scripts included.
func DeserializeTransaction(r io.Reader) (*externalapi.DomainTransaction, error) {
	tx := &externalapi.DomainTransaction{}
	err := ReadElement(r, &tx.Version)
	if err != nil {
		return nil, err
	}
	inputCount, err := ReadCount(r, maxTransactionInputs)
	if err != nil {
		return nil, err
	}
	tx.Inputs = make([]*externalapi.DomainTransactionInput, inputCount)
	for i := range tx.Inputs {
		input := &externalapi.DomainTransactionInput{}
		err = ReadElements(r, &input.PreviousOutpoint, &input.SignatureScript, &input.Sequence)
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = input
	}

	outputCount, err := ReadCount(r, maxTransactionOutputs)
	if err != nil {
		return nil, err
	}
	tx.Outputs = make([]*externalapi.DomainTransactionOutput, outputCount)
	for i := range tx.Outputs {
		output := &externalapi.DomainTransactionOutput{}
		err = ReadElements(r, &output.Value, &output.ScriptPublicKey)
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = output
	}

	err = ReadElements(r, &tx.LockTime, &tx.Payload)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionToBytes returns the full serialization of tx.
func TransactionToBytes(tx *externalapi.DomainTransaction) []byte {
	buf := &bytes.Buffer{}
	mustSerialize(SerializeTransaction(buf, tx, true))
	return buf.Bytes()
}

// BytesToTransaction is the inverse of TransactionToBytes.
func BytesToTransaction(data []byte) (*externalapi.DomainTransaction, error) {
	r := bytes.NewReader(data)
	tx, err := DeserializeTransaction(r)
	if err != nil {
		return nil, err
	}
	return tx, ensureConsumed(r)
}
