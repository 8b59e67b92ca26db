package testutils

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// Router connects in-process nodes. Queries and proof requests are
// answered synchronously, broadcasts are delivered asynchronously. A
// disconnected node neither sends nor receives.
type Router struct {
	lock         sync.RWMutex
	handlers     map[externalapi.ValidatorID]model.MessageHandler
	disconnected map[externalapi.ValidatorID]bool
	closed       bool
	wg           sync.WaitGroup
}

// NewRouter creates an empty Router
func NewRouter() *Router {
	return &Router{
		handlers:     make(map[externalapi.ValidatorID]model.MessageHandler),
		disconnected: make(map[externalapi.ValidatorID]bool),
	}
}

// Register makes handler reachable as id.
func (r *Router) Register(id externalapi.ValidatorID, handler model.MessageHandler) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.handlers[id] = handler
}

// Disconnect partitions id away from every other node.
func (r *Router) Disconnect(id externalapi.ValidatorID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.disconnected[id] = true
}

// Reconnect heals a partition made by Disconnect.
func (r *Router) Reconnect(id externalapi.ValidatorID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.disconnected, id)
}

// Close drops every later message and waits for the deliveries in
// flight.
func (r *Router) Close() {
	r.lock.Lock()
	r.closed = true
	r.lock.Unlock()
	r.wg.Wait()
}

// Channel returns the MessageChannel of the node id.
func (r *Router) Channel(id externalapi.ValidatorID) model.MessageChannel {
	return &routerChannel{router: r, local: id}
}

func (r *Router) handler(from, to externalapi.ValidatorID) (model.MessageHandler, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.closed || r.disconnected[from] || r.disconnected[to] {
		return nil, false
	}
	handler, ok := r.handlers[to]
	return handler, ok
}

func (r *Router) broadcast(from externalapi.ValidatorID, deliver func(model.MessageHandler) error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.closed || r.disconnected[from] {
		return
	}
	for id, handler := range r.handlers {
		if id == from || r.disconnected[id] {
			continue
		}
		handler := handler
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			// Deliveries are best effort, like on the real transport.
			_ = deliver(handler)
		}()
	}
}

type routerChannel struct {
	router *Router
	local  externalapi.ValidatorID
}

func (c *routerChannel) Query(ctx context.Context, peer externalapi.ValidatorID,
	transactionIDs []externalapi.DomainTransactionID, wantVote bool) ([]*externalapi.SampleAnswer, error) {

	handler, ok := c.router.handler(c.local, peer)
	if !ok {
		return nil, errors.Errorf("peer %s unreachable", peer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return handler.HandleSampleQuery(transactionIDs, wantVote), nil
}

func (c *routerChannel) RequestProof(ctx context.Context, peer externalapi.ValidatorID,
	transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {

	handler, ok := c.router.handler(c.local, peer)
	if !ok {
		return nil, errors.Errorf("peer %s unreachable", peer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proof, err := handler.HandleProofRequest(transactionID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, errors.Errorf("peer %s has no proof of %s", peer, transactionID)
	}
	return proof, nil
}

func (c *routerChannel) BroadcastProof(proof *externalapi.FinalityProof) {
	c.router.broadcast(c.local, func(handler model.MessageHandler) error {
		return handler.HandleProof(proof)
	})
}

func (c *routerChannel) BroadcastBlock(block *externalapi.CheckpointBlock) {
	c.router.broadcast(c.local, func(handler model.MessageHandler) error {
		return handler.HandleBlock(block)
	})
}

func (c *routerChannel) RelayTransaction(transaction *externalapi.DomainTransaction) {
	c.router.broadcast(c.local, func(handler model.MessageHandler) error {
		return handler.HandleTransaction(transaction)
	})
}
