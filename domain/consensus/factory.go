package consensus

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/timecoin/timed/domain/consensus/datastructures/blockstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/multisetstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/proofstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/rewardstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/snapshotstore"
	"github.com/timecoin/timed/domain/consensus/datastructures/utxostatestore"
	"github.com/timecoin/timed/domain/consensus/datastructures/voteguardstore"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/processes/anomalydetector"
	"github.com/timecoin/timed/domain/consensus/processes/checkpointproducer"
	"github.com/timecoin/timed/domain/consensus/processes/proofassembler"
	"github.com/timecoin/timed/domain/consensus/processes/transactionvalidator"
	"github.com/timecoin/timed/domain/consensus/processes/utxocoordinator"
	"github.com/timecoin/timed/domain/consensus/processes/validatorsetmanager"
	"github.com/timecoin/timed/domain/consensus/processes/votingengine"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/metrics"
)

const (
	utxoCacheSize     = 100_000
	proofCacheSize    = 10_000
	blockCacheSize    = 200
	multisetCacheSize = 200
)

// Factory instantiates new Consensuses
type Factory interface {
	// NewConsensus wires a Consensus over db. A nil signingKey makes the
	// node a non-voting observer, and a nil vrfKey keeps it from
	// producing checkpoint candidates.
	NewConsensus(params *dagconfig.Params, db database.Database, validators []*externalapi.Validator,
		signingKey *secp256k1.SchnorrKeyPair, vrfKey *vrf.PrivateKey, messageChannel model.MessageChannel,
		metrics *metrics.Metrics) (Consensus, error)

	SetClock(clock model.Clock)
	SetEligibilitySource(eligibility model.EligibilitySource)
}

type factory struct {
	clock       model.Clock
	eligibility model.EligibilitySource
}

// NewFactory creates a new Consensus factory
func NewFactory() Factory {
	return &factory{clock: model.SystemClock{}}
}

// SetClock replaces the wall clock of the consensuses created from now on
func (f *factory) SetClock(clock model.Clock) {
	f.clock = clock
}

// SetEligibilitySource sets the heartbeat attestation source. Without one
// every admitted validator is eligible in every slot.
func (f *factory) SetEligibilitySource(eligibility model.EligibilitySource) {
	f.eligibility = eligibility
}

// NewConsensus instantiates a new Consensus
func (f *factory) NewConsensus(params *dagconfig.Params, db database.Database, validators []*externalapi.Validator,
	signingKey *secp256k1.SchnorrKeyPair, vrfKey *vrf.PrivateKey, messageChannel model.MessageChannel,
	metrics *metrics.Metrics) (Consensus, error) {

	localID, err := localValidatorID(signingKey)
	if err != nil {
		return nil, err
	}

	// Data Structures
	utxoStore, err := utxostatestore.New(db, utxoCacheSize)
	if err != nil {
		return nil, err
	}
	proofStore, err := proofstore.New(db, proofCacheSize)
	if err != nil {
		return nil, err
	}
	blockStore, err := blockstore.New(db, blockCacheSize)
	if err != nil {
		return nil, err
	}
	multisetStore, err := multisetstore.New(db, multisetCacheSize)
	if err != nil {
		return nil, err
	}
	rewardStore := rewardstore.New(db)
	snapshotStore := snapshotstore.New(db)
	voteGuardStore := voteguardstore.New(db)

	// Processes
	validatorSetManager, err := validatorsetmanager.New(
		params,
		snapshotStore,
		validators,
		f.eligibility,
		f.clock,
		localID)
	if err != nil {
		return nil, err
	}
	utxoCoordinator, err := utxocoordinator.New(
		params,
		utxoStore,
		f.clock,
		metrics)
	if err != nil {
		return nil, err
	}
	err = utxoCoordinator.AddGenesisOutputs(params.GenesisTransaction())
	if err != nil {
		return nil, err
	}
	transactionValidator := transactionvalidator.New(
		params,
		utxoStore)
	anomalyDetector := anomalydetector.New(
		params,
		f.clock,
		metrics)
	proofAssembler, err := proofassembler.New(
		params,
		validatorSetManager,
		proofStore,
		utxoCoordinator,
		anomalyDetector,
		metrics)
	if err != nil {
		return nil, err
	}
	votingEngine, err := votingengine.New(
		params,
		signingKey,
		transactionValidator,
		utxoCoordinator,
		proofAssembler,
		validatorSetManager,
		voteGuardStore,
		messageChannel,
		f.clock,
		metrics)
	if err != nil {
		return nil, err
	}
	checkpointProducer, err := checkpointproducer.New(
		params,
		signingKey,
		vrfKey,
		blockStore,
		proofStore,
		multisetStore,
		rewardStore,
		voteGuardStore,
		utxoCoordinator,
		proofAssembler,
		anomalyDetector,
		validatorSetManager,
		messageChannel,
		f.clock,
		metrics)
	if err != nil {
		return nil, err
	}

	proofAssembler.AddFinalityListener(votingEngine)
	proofAssembler.AddFinalityListener(checkpointProducer)
	proofAssembler.AddFinalityListener(&proofGossiper{messageChannel: messageChannel})

	c := &consensus{
		validatorSetManager: validatorSetManager,
		utxoCoordinator:     utxoCoordinator,
		votingEngine:        votingEngine,
		proofAssembler:      proofAssembler,
		anomalyDetector:     anomalyDetector,
		checkpointProducer:  checkpointProducer,

		proofStore:     proofStore,
		blockStore:     blockStore,
		rewardStore:    rewardStore,
		messageChannel: messageChannel,
	}
	log.Infof("Consensus initialized on %s as validator %s", params.Name, localID)
	return c, nil
}

func localValidatorID(signingKey *secp256k1.SchnorrKeyPair) (externalapi.ValidatorID, error) {
	if signingKey == nil {
		return externalapi.ValidatorID{}, nil
	}
	publicKey, err := signing.SerializedPublicKey(signingKey)
	if err != nil {
		return externalapi.ValidatorID{}, err
	}
	return consensushashing.ValidatorID(publicKey), nil
}
