package estimatedsize

import (
	"bytes"
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

func TestEstimateMatchesSerialization(t *testing.T) {
	tx := &externalapi.DomainTransaction{
		Version: 1,
		Inputs: []*externalapi.DomainTransactionInput{
			{PreviousOutpoint: externalapi.DomainOutpoint{Index: 2}, SignatureScript: make([]byte, 65), Sequence: 1},
			{PreviousOutpoint: externalapi.DomainOutpoint{Index: 0}},
		},
		Outputs: []*externalapi.DomainTransactionOutput{
			{Value: 10, ScriptPublicKey: make([]byte, 34)},
		},
		LockTime: 5,
		Payload:  []byte("memo"),
	}

	buf := &bytes.Buffer{}
	err := serialization.SerializeTransaction(buf, tx, true)
	if err != nil {
		t.Fatalf("SerializeTransaction: %+v", err)
	}
	estimated := TransactionEstimatedSerializedSize(tx)
	if estimated != uint64(buf.Len()) {
		t.Fatalf("estimated %d bytes, serialized %d", estimated, buf.Len())
	}
}
