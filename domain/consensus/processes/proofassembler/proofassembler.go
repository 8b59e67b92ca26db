package proofassembler

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/dagconfig"
	"github.com/timecoin/timed/infrastructure/metrics"
)

const (
	verifiedVotesCacheSize       = 100_000
	finalizedCandidatesCacheSize = 10_000
)

// voteSet is the votes for a transaction in a single slot.
type voteSet struct {
	votes  map[externalapi.ValidatorID]*externalapi.SignedVote
	weight uint64
}

type candidate struct {
	transaction   *externalapi.DomainTransaction
	transactionID externalapi.DomainTransactionID
	commitment    externalapi.DomainHash
	inputs        []externalapi.DomainOutpoint
	voteSets      map[uint64]*voteSet
	final         bool
}

func newCandidate(transaction *externalapi.DomainTransaction) *candidate {
	return &candidate{
		transaction:   transaction,
		transactionID: consensushashing.TransactionID(transaction),
		commitment:    consensushashing.TransactionCommitment(transaction),
		inputs:        transaction.Outpoints(),
		voteSets:      make(map[uint64]*voteSet),
	}
}

type proofAssembler struct {
	networkID           externalapi.NetworkID
	validatorSetManager model.ValidatorSetManager
	proofStore          model.ProofStore
	utxoCoordinator     model.UTXOCoordinator
	anomalyDetector     model.AnomalyDetector
	metrics             *metrics.Metrics

	verifiedVotes *lru.Cache

	lock       sync.Mutex
	candidates map[externalapi.DomainTransactionID]*candidate

	// finalized keeps recently finalized candidates so that late votes
	// are still collected.
	finalized *lru.Cache

	listenersLock sync.RWMutex
	listeners     []model.FinalityListener
}

// New instantiates a new ProofAssembler and records every stored proof in
// anomalyDetector
func New(params *dagconfig.Params,
	validatorSetManager model.ValidatorSetManager,
	proofStore model.ProofStore,
	utxoCoordinator model.UTXOCoordinator,
	anomalyDetector model.AnomalyDetector,
	metrics *metrics.Metrics) (model.ProofAssembler, error) {

	verifiedVotes, err := lru.New(verifiedVotesCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	finalized, err := lru.New(finalizedCandidatesCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pa := &proofAssembler{
		networkID:           params.NetworkID,
		validatorSetManager: validatorSetManager,
		proofStore:          proofStore,
		utxoCoordinator:     utxoCoordinator,
		anomalyDetector:     anomalyDetector,
		metrics:             metrics,
		verifiedVotes:       verifiedVotes,
		candidates:          make(map[externalapi.DomainTransactionID]*candidate),
		finalized:           finalized,
	}
	err = pa.restoreProofs()
	if err != nil {
		return nil, err
	}
	return pa, nil
}

func (pa *proofAssembler) AddFinalityListener(listener model.FinalityListener) {
	pa.listenersLock.Lock()
	defer pa.listenersLock.Unlock()
	pa.listeners = append(pa.listeners, listener)
}

func (pa *proofAssembler) notifyFinalized(proof *externalapi.FinalityProof, rejected []externalapi.DomainTransactionID) {
	pa.listenersLock.RLock()
	listeners := append([]model.FinalityListener(nil), pa.listeners...)
	pa.listenersLock.RUnlock()

	for _, listener := range listeners {
		listener.OnTransactionFinalized(proof, rejected)
	}
}

// RegisterTransaction makes transaction known so that votes for it are
// accepted.
func (pa *proofAssembler) RegisterTransaction(transaction *externalapi.DomainTransaction) {
	c := newCandidate(transaction)

	pa.lock.Lock()
	defer pa.lock.Unlock()

	if _, ok := pa.candidates[c.transactionID]; ok {
		return
	}
	if pa.finalized.Contains(c.transactionID) {
		return
	}
	pa.candidates[c.transactionID] = c
}

// ForgetTransaction drops the votes of a transaction that will not be
// finalized. Finalized transactions are kept for late votes.
func (pa *proofAssembler) ForgetTransaction(transactionID externalapi.DomainTransactionID) {
	pa.lock.Lock()
	defer pa.lock.Unlock()
	delete(pa.candidates, transactionID)
}

// lookup returns the candidate of transactionID, pending or finalized.
// It must be called with the lock held.
func (pa *proofAssembler) lookup(transactionID externalapi.DomainTransactionID) (*candidate, bool) {
	if c, ok := pa.candidates[transactionID]; ok {
		return c, true
	}
	if c, ok := pa.finalized.Get(transactionID); ok {
		return c.(*candidate), true
	}
	return nil, false
}

// Votes returns every vote collected for transactionID, ordered by slot
// and then by voter ID.
func (pa *proofAssembler) Votes(transactionID externalapi.DomainTransactionID) []*externalapi.SignedVote {
	pa.lock.Lock()
	defer pa.lock.Unlock()

	c, ok := pa.lookup(transactionID)
	if !ok {
		return nil
	}
	var votes []*externalapi.SignedVote
	for _, set := range c.voteSets {
		for _, vote := range set.votes {
			votes = append(votes, vote)
		}
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].Slot != votes[j].Slot {
			return votes[i].Slot < votes[j].Slot
		}
		return votes[i].VoterID.Less(votes[j].VoterID)
	})
	return votes
}

func (pa *proofAssembler) Proof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {
	proof, found, err := pa.proofStore.Proof(transactionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("no finality proof of %s is held", transactionID)
	}
	return proof, nil
}

func (pa *proofAssembler) IsFinal(transactionID externalapi.DomainTransactionID) bool {
	pa.lock.Lock()
	c, ok := pa.lookup(transactionID)
	pa.lock.Unlock()
	if ok && c.final {
		return true
	}

	hasProof, err := pa.proofStore.HasProof(transactionID)
	if err != nil {
		log.Errorf("Error reading the proof of %s: %+v", transactionID, err)
		return false
	}
	return hasProof
}
