package p2p

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/app/appmessage"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype of timed messages.
const codecName = "timed"

func init() {
	encoding.RegisterCodec(messageCodec{})
}

// envelope carries a single appmessage through gRPC.
type envelope struct {
	message appmessage.Message
}

// messageCodec encodes envelopes with the appmessage wire format.
type messageCodec struct{}

func (messageCodec) Marshal(v interface{}) ([]byte, error) {
	env, ok := v.(*envelope)
	if !ok {
		return nil, errors.Errorf("cannot marshal %T", v)
	}
	return appmessage.WriteMessage(env.message)
}

func (messageCodec) Unmarshal(data []byte, v interface{}) error {
	env, ok := v.(*envelope)
	if !ok {
		return errors.Errorf("cannot unmarshal into %T", v)
	}
	message, err := appmessage.ReadMessage(data)
	if err != nil {
		return err
	}
	env.message = message
	return nil
}

func (messageCodec) Name() string {
	return codecName
}
