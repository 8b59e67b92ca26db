package consensus

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// Consensus maintains the finality and checkpointing state of the node
type Consensus interface {
	// Submit validates a locally submitted transaction, starts voting on
	// it and relays it to the other validators.
	Submit(transaction *externalapi.DomainTransaction) (externalapi.DomainTransactionID, error)
	Status(transactionID externalapi.DomainTransactionID) (externalapi.TxStatus, error)
	// GetProof returns the finality proof of a transaction, or nil if
	// the transaction is not final.
	GetProof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error)
	Votes(transactionID externalapi.DomainTransactionID) []*externalapi.SignedVote
	OutputState(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, error)
	RewardBalance(validatorID externalapi.ValidatorID) (uint64, error)
	Tip() (*externalapi.CheckpointBlock, bool, error)
	Block(height uint64) (*externalapi.CheckpointBlock, error)
	SlotState(slot uint64) model.SlotState
	Anomalies() []*externalapi.Anomaly
	PendingEvidence() []*externalapi.EquivocationEvidence
	AcknowledgeSafetyViolation()

	model.MessageHandler

	LocalValidatorID() externalapi.ValidatorID
	Start() error
	Stop()
}

type consensus struct {
	validatorSetManager model.ValidatorSetManager
	utxoCoordinator     model.UTXOCoordinator
	votingEngine        model.VotingEngine
	proofAssembler      model.ProofAssembler
	anomalyDetector     model.AnomalyDetector
	checkpointProducer  model.CheckpointProducer

	proofStore     model.ProofStore
	blockStore     model.BlockStore
	rewardStore    model.RewardStore
	messageChannel model.MessageChannel
}

// Submit validates the given transaction and, if valid, starts voting on it
func (s *consensus) Submit(transaction *externalapi.DomainTransaction) (externalapi.DomainTransactionID, error) {
	transactionID := consensushashing.TransactionID(transaction)
	err := s.votingEngine.BeginVoting(transaction)
	if err != nil {
		return transactionID, err
	}
	s.messageChannel.RelayTransaction(transaction)
	return transactionID, nil
}

// Status returns the status of a transaction. Archival and finality are
// read from the proof store, since the voting engine drops final
// transactions.
func (s *consensus) Status(transactionID externalapi.DomainTransactionID) (externalapi.TxStatus, error) {
	_, archived, err := s.proofStore.ArchivedHeight(transactionID)
	if err != nil {
		return externalapi.TxStatusUnknown, err
	}
	if archived {
		return externalapi.TxStatusArchived, nil
	}
	if s.proofAssembler.IsFinal(transactionID) {
		return externalapi.TxStatusFinalized, nil
	}
	return s.votingEngine.Status(transactionID), nil
}

func (s *consensus) GetProof(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {
	proof, found, err := s.proofStore.Proof(transactionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return proof, nil
}

func (s *consensus) Votes(transactionID externalapi.DomainTransactionID) []*externalapi.SignedVote {
	return s.proofAssembler.Votes(transactionID)
}

func (s *consensus) OutputState(outpoint externalapi.DomainOutpoint) (*externalapi.OutputState, error) {
	return s.utxoCoordinator.Query(outpoint)
}

func (s *consensus) RewardBalance(validatorID externalapi.ValidatorID) (uint64, error) {
	return s.rewardStore.Balance(validatorID)
}

func (s *consensus) Tip() (*externalapi.CheckpointBlock, bool, error) {
	return s.checkpointProducer.Tip()
}

func (s *consensus) Block(height uint64) (*externalapi.CheckpointBlock, error) {
	return s.blockStore.Block(height)
}

func (s *consensus) SlotState(slot uint64) model.SlotState {
	return s.checkpointProducer.SlotState(slot)
}

func (s *consensus) Anomalies() []*externalapi.Anomaly {
	return s.anomalyDetector.Anomalies()
}

func (s *consensus) PendingEvidence() []*externalapi.EquivocationEvidence {
	return s.anomalyDetector.PendingEvidence()
}

// AcknowledgeSafetyViolation resumes block inclusion after the operator
// inspected a safety violation
func (s *consensus) AcknowledgeSafetyViolation() {
	log.Warnf("Safety violation acknowledged by the operator, resuming block inclusion")
	s.anomalyDetector.AcknowledgeSafetyViolation()
}

func (s *consensus) HandleSampleQuery(transactionIDs []externalapi.DomainTransactionID,
	wantVote bool) []*externalapi.SampleAnswer {

	return s.votingEngine.HandleSampleQuery(transactionIDs, wantVote)
}

// HandleProof imports a finality proof gossiped by a peer
func (s *consensus) HandleProof(proof *externalapi.FinalityProof) error {
	if proof == nil || proof.Transaction == nil {
		return errors.New("received an empty finality proof")
	}
	return s.proofAssembler.ImportProof(proof)
}

func (s *consensus) HandleBlock(block *externalapi.CheckpointBlock) error {
	return s.checkpointProducer.HandleBlock(block)
}

// HandleTransaction starts voting on a transaction relayed by a peer
func (s *consensus) HandleTransaction(transaction *externalapi.DomainTransaction) error {
	if s.proofAssembler.IsFinal(consensushashing.TransactionID(transaction)) {
		return nil
	}
	return s.votingEngine.BeginVoting(transaction)
}

func (s *consensus) HandleProofRequest(transactionID externalapi.DomainTransactionID) (*externalapi.FinalityProof, error) {
	return s.GetProof(transactionID)
}

func (s *consensus) LocalValidatorID() externalapi.ValidatorID {
	return s.validatorSetManager.LocalValidatorID()
}

// Start starts the reservation sweeper, the voting loops and the slot
// schedule, in that order
func (s *consensus) Start() error {
	err := s.utxoCoordinator.Start()
	if err != nil {
		return err
	}
	err = s.votingEngine.Start()
	if err != nil {
		s.utxoCoordinator.Stop()
		return err
	}
	err = s.checkpointProducer.Start()
	if err != nil {
		s.votingEngine.Stop()
		s.utxoCoordinator.Stop()
		return err
	}
	return nil
}

func (s *consensus) Stop() {
	s.checkpointProducer.Stop()
	s.votingEngine.Stop()
	s.utxoCoordinator.Stop()
}

// proofGossiper broadcasts every proof the node learns about, so that
// peers that missed some of the votes still reach finality.
type proofGossiper struct {
	messageChannel model.MessageChannel
}

func (pg *proofGossiper) OnTransactionFinalized(proof *externalapi.FinalityProof, _ []externalapi.DomainTransactionID) {
	pg.messageChannel.BroadcastProof(proof)
}
