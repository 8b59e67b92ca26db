package appmessage

import (
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MsgProofGossip implements the Message interface and represents a timed
// ProofGossip message. It spreads a finality proof, and also answers a
// ProofRequest, in which case a nil Proof means the peer holds none.
type MsgProofGossip struct {
	Proof *externalapi.FinalityProof
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgProofGossip) Command() MessageCommand {
	return CmdProofGossip
}

func (msg *MsgProofGossip) encode(w io.Writer) error {
	err := serialization.WriteElement(w, msg.Proof != nil)
	if err != nil || msg.Proof == nil {
		return err
	}
	return serialization.SerializeFinalityProof(w, msg.Proof)
}

func (msg *MsgProofGossip) decode(r io.Reader) error {
	var hasProof bool
	err := serialization.ReadElement(r, &hasProof)
	if err != nil || !hasProof {
		return err
	}
	msg.Proof, err = serialization.DeserializeFinalityProof(r)
	return err
}

// NewMsgProofGossip returns a new proof gossip message.
func NewMsgProofGossip(proof *externalapi.FinalityProof) *MsgProofGossip {
	return &MsgProofGossip{
		Proof: proof,
	}
}
