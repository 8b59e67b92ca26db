package appmessage

import (
	"io"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// MsgSampleResponse implements the Message interface and represents a
// timed SampleResponse message. It carries one answer per queried
// transaction, in query order.
type MsgSampleResponse struct {
	Answers []*externalapi.SampleAnswer
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgSampleResponse) Command() MessageCommand {
	return CmdSampleResponse
}

func (msg *MsgSampleResponse) encode(w io.Writer) error {
	if len(msg.Answers) > MaxTransactionsPerSampleQuery {
		return errors.Errorf("too many answers in a sample response: %d", len(msg.Answers))
	}
	err := serialization.WriteElement(w, uint64(len(msg.Answers)))
	if err != nil {
		return err
	}
	for _, answer := range msg.Answers {
		err = serialization.WriteElements(w, answer.TransactionID, uint8(answer.Decision), answer.Vote != nil)
		if err != nil {
			return err
		}
		if answer.Vote == nil {
			continue
		}
		err = serialization.SerializeSignedVote(w, answer.Vote, true)
		if err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgSampleResponse) decode(r io.Reader) error {
	count, err := serialization.ReadCount(r, MaxTransactionsPerSampleQuery)
	if err != nil {
		return err
	}
	msg.Answers = make([]*externalapi.SampleAnswer, count)
	for i := range msg.Answers {
		answer := &externalapi.SampleAnswer{}
		var decision uint8
		var hasVote bool
		err = serialization.ReadElements(r, &answer.TransactionID, &decision, &hasVote)
		if err != nil {
			return err
		}
		if decision > uint8(externalapi.DecisionInvalid) {
			return errors.Wrapf(serialization.ErrMalformed, "unknown decision %d", decision)
		}
		answer.Decision = externalapi.Decision(decision)
		if hasVote {
			answer.Vote, err = serialization.DeserializeSignedVote(r)
			if err != nil {
				return err
			}
		}
		msg.Answers[i] = answer
	}
	return nil
}

// NewMsgSampleResponse returns a new sample response message.
func NewMsgSampleResponse(answers []*externalapi.SampleAnswer) *MsgSampleResponse {
	return &MsgSampleResponse{
		Answers: answers,
	}
}
