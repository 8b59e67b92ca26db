package utxocoordinator

import (
	"crypto/rand"
	"sort"
	"sync"

	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/metrics"
)

const shardCount = 64

// shard serializes every transition of the outputs hashed to it.
type shard struct {
	sync.Mutex

	// contenders holds every transaction that reserved or attempted to
	// reserve a not yet final output.
	contenders map[externalapi.DomainOutpoint]map[externalapi.DomainTransactionID]struct{}
}

type utxoCoordinator struct {
	params    *dagconfig.Params
	utxoStore model.UTXOStore
	clock     model.Clock
	metrics   *metrics.Metrics

	shardKey []byte
	shards   [shardCount]*shard

	reservationsLock sync.Mutex
	reservations     map[externalapi.DomainOutpoint]*reservation

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type reservation struct {
	transactionID externalapi.DomainTransactionID
	reservedAt    int64
}

// New instantiates a new UTXOCoordinator
func New(params *dagconfig.Params, utxoStore model.UTXOStore, clock model.Clock,
	metrics *metrics.Metrics) (model.UTXOCoordinator, error) {

	shardKey := make([]byte, 32)
	_, err := rand.Read(shardKey)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := &utxoCoordinator{
		params:       params,
		utxoStore:    utxoStore,
		clock:        clock,
		metrics:      metrics,
		shardKey:     shardKey,
		reservations: make(map[externalapi.DomainOutpoint]*reservation),
		quit:         make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			contenders: make(map[externalapi.DomainOutpoint]map[externalapi.DomainTransactionID]struct{}),
		}
	}
	return c, nil
}

func (c *utxoCoordinator) shardIndex(outpoint externalapi.DomainOutpoint) int {
	return int(highwayhash.Sum64(serialization.OutpointToKey(outpoint), c.shardKey) % shardCount)
}

func (c *utxoCoordinator) shardOf(outpoint externalapi.DomainOutpoint) *shard {
	return c.shards[c.shardIndex(outpoint)]
}

// lockShards locks the shards of every given outpoint in ascending shard
// order and returns the matching unlock function.
func (c *utxoCoordinator) lockShards(outpoints []externalapi.DomainOutpoint) (unlock func()) {
	indexSet := make(map[int]struct{}, len(outpoints))
	for _, outpoint := range outpoints {
		indexSet[c.shardIndex(outpoint)] = struct{}{}
	}
	indexes := make([]int, 0, len(indexSet))
	for index := range indexSet {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	for _, index := range indexes {
		c.shards[index].Lock()
	}
	return func() {
		for i := len(indexes) - 1; i >= 0; i-- {
			c.shards[indexes[i]].Unlock()
		}
	}
}

func (c *utxoCoordinator) getState(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, error) {
	state, found, err := c.utxoStore.GetOutputState(outpoint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ruleerrors.ErrMissingOutput, "output %s does not exist", outpoint)
	}
	return state, nil
}

func (c *utxoCoordinator) Query(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, error) {
	s := c.shardOf(outpoint)
	s.Lock()
	defer s.Unlock()

	return c.getState(outpoint)
}

func (s *shard) addContender(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) {
	contenders, ok := s.contenders[outpoint]
	if !ok {
		contenders = make(map[externalapi.DomainTransactionID]struct{})
		s.contenders[outpoint] = contenders
	}
	contenders[transactionID] = struct{}{}
}

func (s *shard) removeContender(outpoint externalapi.DomainOutpoint, transactionID externalapi.DomainTransactionID) {
	contenders, ok := s.contenders[outpoint]
	if !ok {
		return
	}
	delete(contenders, transactionID)
	if len(contenders) == 0 {
		delete(s.contenders, outpoint)
	}
}

// takeLosers removes the contenders of outpoint and returns all but the
// winner.
func (s *shard) takeLosers(outpoint externalapi.DomainOutpoint,
	winner externalapi.DomainTransactionID) []externalapi.DomainTransactionID {

	contenders := s.contenders[outpoint]
	delete(s.contenders, outpoint)

	losers := make([]externalapi.DomainTransactionID, 0, len(contenders))
	for transactionID := range contenders {
		if transactionID != winner {
			losers = append(losers, transactionID)
		}
	}
	return losers
}

func (c *utxoCoordinator) trackReservation(outpoint externalapi.DomainOutpoint,
	transactionID externalapi.DomainTransactionID, reservedAt int64) {

	c.reservationsLock.Lock()
	defer c.reservationsLock.Unlock()
	c.reservations[outpoint] = &reservation{transactionID: transactionID, reservedAt: reservedAt}
}

func (c *utxoCoordinator) untrackReservation(outpoint externalapi.DomainOutpoint) {
	c.reservationsLock.Lock()
	defer c.reservationsLock.Unlock()
	delete(c.reservations, outpoint)
}

// Start rebuilds the reservation index from storage and starts the
// reservation sweeper.
func (c *utxoCoordinator) Start() error {
	reserved, err := c.utxoStore.ReservedOutputs()
	if err != nil {
		return err
	}
	for outpoint, state := range reserved {
		c.shardOf(outpoint).addContender(outpoint, state.SpenderID)
		c.trackReservation(outpoint, state.SpenderID, state.ReservedAt)
	}
	log.Infof("Loaded %d reserved outputs", len(reserved))

	c.wg.Add(1)
	spawn(c.sweepLoop)
	return nil
}

func (c *utxoCoordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
	c.wg.Wait()
}

func dedupTransactionIDs(transactionIDs []externalapi.DomainTransactionID) []externalapi.DomainTransactionID {
	set := make(map[externalapi.DomainTransactionID]struct{}, len(transactionIDs))
	result := make([]externalapi.DomainTransactionID, 0, len(transactionIDs))
	for _, transactionID := range transactionIDs {
		if _, ok := set[transactionID]; ok {
			continue
		}
		set[transactionID] = struct{}{}
		result = append(result, transactionID)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result
}
