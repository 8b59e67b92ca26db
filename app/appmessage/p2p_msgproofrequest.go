package appmessage

import (
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MsgProofRequest implements the Message interface and represents a timed
// ProofRequest message. The peer answers with a MsgProofGossip.
type MsgProofRequest struct {
	TransactionID externalapi.DomainTransactionID
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgProofRequest) Command() MessageCommand {
	return CmdProofRequest
}

func (msg *MsgProofRequest) encode(w io.Writer) error {
	return serialization.WriteElement(w, msg.TransactionID)
}

func (msg *MsgProofRequest) decode(r io.Reader) error {
	return serialization.ReadElement(r, &msg.TransactionID)
}

// NewMsgProofRequest returns a new proof request message.
func NewMsgProofRequest(transactionID externalapi.DomainTransactionID) *MsgProofRequest {
	return &MsgProofRequest{
		TransactionID: transactionID,
	}
}
