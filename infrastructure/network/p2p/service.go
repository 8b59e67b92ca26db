package p2p

import (
	"context"
	"strconv"

	"github.com/timecoin/timed/app/appmessage"
	"github.com/timecoin/timed/util/panics"
	"github.com/timecoin/timed/version"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	serviceName        = "timed.P2P"
	exchangeMethodName = "Exchange"
	exchangeMethod     = "/" + serviceName + "/" + exchangeMethodName

	protocolVersionKey = "timed-protocol-version"
)

// exchanger answers a single message from a peer.
type exchanger interface {
	exchange(ctx context.Context, request *envelope) (*envelope, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchanger)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: exchangeMethodName,
			Handler:    exchangeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timed/p2p",
}

func exchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	request := &envelope{}
	err := dec(request)
	if err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchanger).exchange(ctx, request)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: exchangeMethod,
	}
	handler := func(ctx context.Context, request interface{}) (interface{}, error) {
		return srv.(exchanger).exchange(ctx, request.(*envelope))
	}
	return interceptor(ctx, request, info, handler)
}

// exchange dispatches a peer's message to the local handler. Errors of
// one-way messages are logged and acknowledged, since the sender does not
// wait for their outcome.
func (na *NetAdapter) exchange(ctx context.Context, request *envelope) (*envelope, error) {
	defer panics.HandlePanic(log, nil)

	err := checkProtocolVersion(ctx)
	if err != nil {
		return nil, err
	}

	handler := na.messageHandler()
	if handler == nil {
		return nil, status.Error(codes.Unavailable, "the node is not ready")
	}

	switch message := request.message.(type) {
	case *appmessage.MsgSampleQuery:
		answers := handler.HandleSampleQuery(message.TransactionIDs, message.WantVote)
		return &envelope{message: appmessage.NewMsgSampleResponse(answers)}, nil

	case *appmessage.MsgProofRequest:
		proof, err := handler.HandleProofRequest(message.TransactionID)
		if err != nil {
			log.Errorf("Error serving the proof of %s: %+v", message.TransactionID, err)
			return nil, status.Error(codes.Internal, "could not read the requested proof")
		}
		return &envelope{message: appmessage.NewMsgProofGossip(proof)}, nil

	case *appmessage.MsgProofGossip:
		if message.Proof == nil {
			return nil, status.Error(codes.InvalidArgument, "gossip without a proof")
		}
		err := handler.HandleProof(message.Proof)
		if err != nil {
			log.Debugf("Rejected a gossiped proof: %s", err)
		}

	case *appmessage.MsgBlockBroadcast:
		err := handler.HandleBlock(message.Block)
		if err != nil {
			log.Debugf("Rejected a checkpoint candidate of slot %d: %s", message.Block.Header.Slot, err)
		}

	case *appmessage.MsgTransactionRelay:
		err := handler.HandleTransaction(message.Transaction)
		if err != nil {
			log.Debugf("Rejected a relayed transaction: %s", err)
		}

	default:
		return nil, status.Errorf(codes.InvalidArgument, "unexpected %s message", request.message.Command())
	}
	return &envelope{message: appmessage.NewMsgAck()}, nil
}

// checkProtocolVersion refuses peers that speak another protocol version.
func checkProtocolVersion(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(protocolVersionKey)
	if len(values) != 1 {
		return status.Error(codes.FailedPrecondition, "missing protocol version")
	}
	peerVersion, err := strconv.ParseUint(values[0], 10, 32)
	if err != nil || uint32(peerVersion) != version.ProtocolVersion {
		return status.Errorf(codes.FailedPrecondition, "unsupported protocol version %q, expected %d",
			values[0], version.ProtocolVersion)
	}
	return nil
}
