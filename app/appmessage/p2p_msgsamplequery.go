package appmessage

import (
	"io"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MaxTransactionsPerSampleQuery is the maximum number of transactions a
// single sample query may ask about.
const MaxTransactionsPerSampleQuery = 1024

// MsgSampleQuery implements the Message interface and represents a timed
// SampleQuery message. It asks a validator for its current decision on
// each of the transactions, and for a signed vote on those it considers
// valid when WantVote is set.
type MsgSampleQuery struct {
	TransactionIDs []externalapi.DomainTransactionID
	WantVote       bool
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgSampleQuery) Command() MessageCommand {
	return CmdSampleQuery
}

func (msg *MsgSampleQuery) encode(w io.Writer) error {
	if len(msg.TransactionIDs) > MaxTransactionsPerSampleQuery {
		return errors.Errorf("too many transactions in a sample query: %d", len(msg.TransactionIDs))
	}
	err := serialization.WriteElements(w, msg.WantVote, uint64(len(msg.TransactionIDs)))
	if err != nil {
		return err
	}
	for _, transactionID := range msg.TransactionIDs {
		err = serialization.WriteElement(w, transactionID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgSampleQuery) decode(r io.Reader) error {
	err := serialization.ReadElement(r, &msg.WantVote)
	if err != nil {
		return err
	}
	count, err := serialization.ReadCount(r, MaxTransactionsPerSampleQuery)
	if err != nil {
		return err
	}
	msg.TransactionIDs = make([]externalapi.DomainTransactionID, count)
	for i := range msg.TransactionIDs {
		err = serialization.ReadElement(r, &msg.TransactionIDs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// NewMsgSampleQuery returns a new sample query message.
func NewMsgSampleQuery(transactionIDs []externalapi.DomainTransactionID, wantVote bool) *MsgSampleQuery {
	return &MsgSampleQuery{
		TransactionIDs: transactionIDs,
		WantVote:       wantVote,
	}
}
