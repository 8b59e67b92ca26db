package appmessage

import "io"

// MsgAck implements the Message interface and acknowledges a one-way
// message: a gossiped proof, a block broadcast or a transaction relay.
type MsgAck struct{}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgAck) Command() MessageCommand {
	return CmdAck
}

func (msg *MsgAck) encode(io.Writer) error {
	return nil
}

func (msg *MsgAck) decode(io.Reader) error {
	return nil
}

// NewMsgAck returns a new ack message.
func NewMsgAck() *MsgAck {
	return &MsgAck{}
}
