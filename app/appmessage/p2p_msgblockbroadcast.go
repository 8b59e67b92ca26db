package appmessage

import (
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MsgBlockBroadcast implements the Message interface and represents a
// timed BlockBroadcast message. It carries a checkpoint candidate together
// with the proofs of its entries.
type MsgBlockBroadcast struct {
	Block *externalapi.CheckpointBlock
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgBlockBroadcast) Command() MessageCommand {
	return CmdBlockBroadcast
}

func (msg *MsgBlockBroadcast) encode(w io.Writer) error {
	return serialization.SerializeCheckpointBlock(w, msg.Block)
}

func (msg *MsgBlockBroadcast) decode(r io.Reader) error {
	block, err := serialization.DeserializeCheckpointBlock(r)
	if err != nil {
		return err
	}
	msg.Block = block
	return nil
}

// NewMsgBlockBroadcast returns a new block broadcast message.
func NewMsgBlockBroadcast(block *externalapi.CheckpointBlock) *MsgBlockBroadcast {
	return &MsgBlockBroadcast{
		Block: block,
	}
}
