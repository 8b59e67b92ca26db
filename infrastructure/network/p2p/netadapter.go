package p2p

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/app/appmessage"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/version"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	// broadcastTimeout bounds the delivery of a one-way message to a
	// single peer.
	broadcastTimeout = 5 * time.Second

	stopTimeout = 2 * time.Second
)

// Dialer opens the connection to a peer address.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// Peer is a validator together with its dial address.
type Peer struct {
	ID      externalapi.ValidatorID
	Address string
}

// NetAdapter is the gRPC transport between validators. It serves the
// local MessageHandler to peers and implements model.MessageChannel over
// connections to the configured peers.
type NetAdapter struct {
	listenAddress string
	peers         map[externalapi.ValidatorID]string
	dialer        Dialer

	handlerLock sync.RWMutex
	handler     model.MessageHandler

	server *grpc.Server

	connectionsLock sync.Mutex
	connections     map[externalapi.ValidatorID]*grpc.ClientConn

	stopped  bool
	stopLock sync.RWMutex
	wg       sync.WaitGroup
}

// NewNetAdapter creates a NetAdapter that listens on listenAddress and
// talks to peers.
func NewNetAdapter(listenAddress string, peers []*Peer) *NetAdapter {
	peerAddresses := make(map[externalapi.ValidatorID]string, len(peers))
	for _, peer := range peers {
		peerAddresses[peer.ID] = peer.Address
	}
	na := &NetAdapter{
		listenAddress: listenAddress,
		peers:         peerAddresses,
		connections:   make(map[externalapi.ValidatorID]*grpc.ClientConn),
		server: grpc.NewServer(
			grpc.MaxRecvMsgSize(appmessage.MaxMessagePayload),
			grpc.MaxSendMsgSize(appmessage.MaxMessagePayload)),
	}
	na.server.RegisterService(&serviceDesc, na)
	return na
}

// SetMessageHandler sets the handler of incoming messages. Messages that
// arrive before it is set are refused.
func (na *NetAdapter) SetMessageHandler(handler model.MessageHandler) {
	na.handlerLock.Lock()
	defer na.handlerLock.Unlock()
	na.handler = handler
}

func (na *NetAdapter) messageHandler() model.MessageHandler {
	na.handlerLock.RLock()
	defer na.handlerLock.RUnlock()
	return na.handler
}

// SetDialer replaces the TCP dialer used to reach peers.
func (na *NetAdapter) SetDialer(dialer Dialer) {
	na.dialer = dialer
}

// Start listens on the configured address and serves peers.
func (na *NetAdapter) Start() error {
	listener, err := net.Listen("tcp", na.listenAddress)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", na.listenAddress)
	}
	na.Serve(listener)
	log.Infof("P2P server listening on %s", listener.Addr())
	return nil
}

// Serve serves peers on listener.
func (na *NetAdapter) Serve(listener net.Listener) {
	na.wg.Add(1)
	spawn(func() {
		defer na.wg.Done()
		err := na.server.Serve(listener)
		if err != nil {
			log.Errorf("Error serving peers on %s: %+v", listener.Addr(), err)
		}
	})
}

// Stop stops serving peers, closes every peer connection and waits for
// the broadcasts in flight.
func (na *NetAdapter) Stop() error {
	na.stopLock.Lock()
	na.stopped = true
	na.stopLock.Unlock()

	stopChan := make(chan struct{})
	spawn(func() {
		na.server.GracefulStop()
		close(stopChan)
	})
	select {
	case <-stopChan:
	case <-time.After(stopTimeout):
		log.Warnf("Could not gracefully stop the P2P server: timed out after %s", stopTimeout)
		na.server.Stop()
		<-stopChan
	}

	na.wg.Wait()

	na.connectionsLock.Lock()
	defer na.connectionsLock.Unlock()
	for id, connection := range na.connections {
		err := connection.Close()
		if err != nil {
			log.Warnf("Error closing the connection to %s: %s", id, err)
		}
		delete(na.connections, id)
	}
	return nil
}

// connection returns the connection to peer, dialing it on first use.
// Dialing does not block: the connection is established by the first
// call.
func (na *NetAdapter) connection(peer externalapi.ValidatorID) (*grpc.ClientConn, error) {
	na.connectionsLock.Lock()
	defer na.connectionsLock.Unlock()

	if connection, ok := na.connections[peer]; ok {
		return connection, nil
	}
	address, ok := na.peers[peer]
	if !ok {
		return nil, errors.Errorf("no address is configured for peer %s", peer)
	}

	options := []grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(appmessage.MaxMessagePayload),
			grpc.MaxCallSendMsgSize(appmessage.MaxMessagePayload)),
	}
	if na.dialer != nil {
		options = append(options, grpc.WithContextDialer(na.dialer))
	}
	connection, err := grpc.Dial(address, options...)
	if err != nil {
		return nil, errors.Wrapf(err, "error dialing peer %s at %s", peer, address)
	}
	na.connections[peer] = connection
	log.Debugf("Opened a connection to %s at %s", peer, address)
	return connection, nil
}

// send delivers request to peer and returns its answer.
func (na *NetAdapter) send(ctx context.Context, peer externalapi.ValidatorID,
	request appmessage.Message) (appmessage.Message, error) {

	connection, err := na.connection(peer)
	if err != nil {
		return nil, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, protocolVersionKey, strconv.FormatUint(uint64(version.ProtocolVersion), 10))
	response := &envelope{}
	err = connection.Invoke(ctx, exchangeMethod, &envelope{message: request}, response)
	if err != nil {
		return nil, errors.Wrapf(err, "error sending %s to %s", request.Command(), peer)
	}
	return response.message, nil
}

// broadcast delivers message to every peer in the background.
func (na *NetAdapter) broadcast(message appmessage.Message) {
	na.stopLock.RLock()
	defer na.stopLock.RUnlock()
	if na.stopped {
		return
	}

	for peer := range na.peers {
		peer := peer
		na.wg.Add(1)
		spawn(func() {
			defer na.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
			defer cancel()
			_, err := na.send(ctx, peer, message)
			if err != nil {
				log.Debugf("%s", err)
			}
		})
	}
}
