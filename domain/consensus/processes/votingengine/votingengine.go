package votingengine

import (
	"context"
	crand "crypto/rand"
	"math/rand"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kaspanet/go-secp256k1"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/sampling"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/metrics"
)

const (
	rejectedCacheSize = 100_000
	voteLockCount     = 64
)

// voteRound is the sampling state of a single candidate transaction.
type voteRound struct {
	transaction   *externalapi.DomainTransaction
	transactionID externalapi.DomainTransactionID
	inputs        []externalapi.DomainOutpoint
	firstSeen     time.Time

	rounds      int
	consecutive int
	cumulative  int
	accepted    bool

	// selfVoteSlot is the last slot the local validator cast its own
	// vote in, plus one. Zero means it never voted. It and localVote are
	// guarded by the vote lock of transactionID.
	selfVoteSlot uint64
	localVote    *externalapi.SignedVote

	cancel context.CancelFunc
}

// conflictSet is every tracked candidate spending one output.
type conflictSet struct {
	members    map[externalapi.DomainTransactionID]*voteRound
	preference externalapi.DomainTransactionID
}

type votingEngine struct {
	params     *dagconfig.Params
	signingKey *secp256k1.SchnorrKeyPair

	transactionValidator model.TransactionValidator
	utxoCoordinator      model.UTXOCoordinator
	proofAssembler       model.ProofAssembler
	validatorSetManager  model.ValidatorSetManager
	voteGuardStore       model.VoteGuardStore
	messageChannel       model.MessageChannel
	clock                model.Clock
	metrics              *metrics.Metrics

	// lock guards the candidates and their conflict sets. No store is
	// read or written while it is held.
	lock         sync.RWMutex
	candidates   map[externalapi.DomainTransactionID]*voteRound
	conflictSets map[externalapi.DomainOutpoint]*conflictSet
	rejected     *lru.Cache

	// voteLocks serialize the signing of local votes per transaction.
	voteLockKey []byte
	voteLocks   [voteLockCount]sync.Mutex

	rngLock sync.Mutex
	rng     *rand.Rand

	ctx     context.Context
	stop    context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New instantiates a new VotingEngine. A nil signingKey makes the node a
// non-voting observer.
func New(params *dagconfig.Params,
	signingKey *secp256k1.SchnorrKeyPair,
	transactionValidator model.TransactionValidator,
	utxoCoordinator model.UTXOCoordinator,
	proofAssembler model.ProofAssembler,
	validatorSetManager model.ValidatorSetManager,
	voteGuardStore model.VoteGuardStore,
	messageChannel model.MessageChannel,
	clock model.Clock,
	metrics *metrics.Metrics) (model.VotingEngine, error) {

	rejected, err := lru.New(rejectedCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	voteLockKey := make([]byte, 32)
	_, err = crand.Read(voteLockKey)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &votingEngine{
		params:               params,
		signingKey:           signingKey,
		transactionValidator: transactionValidator,
		utxoCoordinator:      utxoCoordinator,
		proofAssembler:       proofAssembler,
		validatorSetManager:  validatorSetManager,
		voteGuardStore:       voteGuardStore,
		messageChannel:       messageChannel,
		clock:                clock,
		metrics:              metrics,
		candidates:           make(map[externalapi.DomainTransactionID]*voteRound),
		conflictSets:         make(map[externalapi.DomainOutpoint]*conflictSet),
		rejected:             rejected,
		voteLockKey:          voteLockKey,
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:                  ctx,
		stop:                 stop,
	}, nil
}

// Start starts polling every candidate received so far.
func (ve *votingEngine) Start() error {
	ve.lock.Lock()
	defer ve.lock.Unlock()

	if ve.started {
		return errors.New("voting engine already started")
	}
	ve.started = true
	for _, round := range ve.candidates {
		ve.startPolling(round)
	}
	return nil
}

// Stop cancels every polling loop and waits for them to exit.
func (ve *votingEngine) Stop() {
	ve.stop()
	ve.wg.Wait()
}

// Status returns the status of a transaction tracked by the engine.
// Finalized transactions are not tracked by the engine.
func (ve *votingEngine) Status(transactionID externalapi.DomainTransactionID) externalapi.TxStatus {
	ve.lock.RLock()
	defer ve.lock.RUnlock()

	if round, ok := ve.candidates[transactionID]; ok {
		if round.rounds == 0 {
			return externalapi.TxStatusSeen
		}
		return externalapi.TxStatusVoting
	}
	if ve.rejected.Contains(transactionID) {
		return externalapi.TxStatusRejected
	}
	return externalapi.TxStatusUnknown
}

func (ve *votingEngine) IsPreferred(transactionID externalapi.DomainTransactionID) bool {
	ve.lock.RLock()
	defer ve.lock.RUnlock()

	round, ok := ve.candidates[transactionID]
	return ok && ve.isPreferred(round)
}

// isPreferred must be called with the lock held.
func (ve *votingEngine) isPreferred(round *voteRound) bool {
	for _, outpoint := range round.inputs {
		set, ok := ve.conflictSets[outpoint]
		if !ok || set.preference != round.transactionID {
			return false
		}
	}
	return true
}

func (ve *votingEngine) voteLockOf(transactionID externalapi.DomainTransactionID) *sync.Mutex {
	return &ve.voteLocks[highwayhash.Sum64(transactionID[:], ve.voteLockKey)%voteLockCount]
}

func (ve *votingEngine) sample(validators []*externalapi.Validator,
	exclude externalapi.ValidatorID) []*externalapi.Validator {

	ve.rngLock.Lock()
	defer ve.rngLock.Unlock()
	return sampling.WeightedSample(validators, ve.params.K, ve.rng, exclude)
}
