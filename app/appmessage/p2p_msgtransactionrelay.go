package appmessage

import (
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MsgTransactionRelay implements the Message interface and represents a
// timed TransactionRelay message. It spreads a submitted transaction so
// that every validator can answer sample queries about it.
type MsgTransactionRelay struct {
	Transaction *externalapi.DomainTransaction
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgTransactionRelay) Command() MessageCommand {
	return CmdTransactionRelay
}

func (msg *MsgTransactionRelay) encode(w io.Writer) error {
	return serialization.SerializeTransaction(w, msg.Transaction, true)
}

func (msg *MsgTransactionRelay) decode(r io.Reader) error {
	transaction, err := serialization.DeserializeTransaction(r)
	if err != nil {
		return err
	}
	msg.Transaction = transaction
	return nil
}

// NewMsgTransactionRelay returns a new transaction relay message.
func NewMsgTransactionRelay(transaction *externalapi.DomainTransaction) *MsgTransactionRelay {
	return &MsgTransactionRelay{
		Transaction: transaction,
	}
}
