// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 32 // 32MB

// MessageCommand is a number in the header of a message that represents its type.
type MessageCommand uint32

func (cmd MessageCommand) String() string {
	cmdString, ok := ProtocolMessageCommandToString[cmd]
	if !ok {
		cmdString = "unknown command"
	}
	return fmt.Sprintf("%s [code %d]", cmdString, uint32(cmd))
}

// Commands used in timed message headers which describe the type of message.
const (
	CmdAck MessageCommand = iota
	CmdSampleQuery
	CmdSampleResponse
	CmdProofGossip
	CmdProofRequest
	CmdBlockBroadcast
	CmdTransactionRelay
)

// ProtocolMessageCommandToString maps all MessageCommands to their string representation
var ProtocolMessageCommandToString = map[MessageCommand]string{
	CmdAck:              "Ack",
	CmdSampleQuery:      "SampleQuery",
	CmdSampleResponse:   "SampleResponse",
	CmdProofGossip:      "ProofGossip",
	CmdProofRequest:     "ProofRequest",
	CmdBlockBroadcast:   "BlockBroadcast",
	CmdTransactionRelay: "TransactionRelay",
}

// ErrUnknownCommand is returned when reading a message of an unknown type.
var ErrUnknownCommand = errors.New("unknown message command")

// Message is an interface that describes a timed message. A type that
// implements Message has complete control over the representation of its
// data on the wire.
type Message interface {
	Command() MessageCommand
	encode(w io.Writer) error
	decode(r io.Reader) error
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the command.
func makeEmptyMessage(command MessageCommand) (Message, error) {
	switch command {
	case CmdAck:
		return &MsgAck{}, nil
	case CmdSampleQuery:
		return &MsgSampleQuery{}, nil
	case CmdSampleResponse:
		return &MsgSampleResponse{}, nil
	case CmdProofGossip:
		return &MsgProofGossip{}, nil
	case CmdProofRequest:
		return &MsgProofRequest{}, nil
	case CmdBlockBroadcast:
		return &MsgBlockBroadcast{}, nil
	case CmdTransactionRelay:
		return &MsgTransactionRelay{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownCommand, "command %d", uint32(command))
}

// WriteMessage returns the wire encoding of msg: its command followed by
// its payload.
func WriteMessage(msg Message) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := serialization.WriteElement(buf, uint32(msg.Command()))
	if err != nil {
		return nil, err
	}
	err = msg.encode(buf)
	if err != nil {
		return nil, err
	}
	if buf.Len() > MaxMessagePayload {
		return nil, errors.Errorf("%s message of %d bytes exceeds the maximum of %d",
			msg.Command(), buf.Len(), MaxMessagePayload)
	}
	return buf.Bytes(), nil
}

// ReadMessage decodes a message written by WriteMessage.
func ReadMessage(data []byte) (Message, error) {
	if len(data) > MaxMessagePayload {
		return nil, errors.Errorf("message of %d bytes exceeds the maximum of %d", len(data), MaxMessagePayload)
	}
	r := bytes.NewReader(data)
	var command uint32
	err := serialization.ReadElement(r, &command)
	if err != nil {
		return nil, err
	}
	msg, err := makeEmptyMessage(MessageCommand(command))
	if err != nil {
		return nil, err
	}
	err = msg.decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed %s message", msg.Command())
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(serialization.ErrMalformed, "%d trailing bytes after a %s message",
			r.Len(), msg.Command())
	}
	return msg, nil
}
