package externalapi

// CheckpointBlockHeader is the signed part of a checkpoint block.
type CheckpointBlockHeader struct {
	Version        uint16
	Height         uint64
	Slot           uint64
	SlotTime       int64
	PrevHash       DomainHash
	ProducerID     ValidatorID
	VRFOutput      DomainHash
	VRFProof       []byte
	EntriesRoot    DomainHash
	UTXOCommitment DomainHash
	RewardsRoot    DomainHash
}

// CheckpointEntry references a finalized transaction and its proof.
type CheckpointEntry struct {
	TransactionID DomainTransactionID
	ProofHash     DomainHash
}

// Reward credits a validator with an amount.
type Reward struct {
	ValidatorID ValidatorID
	Amount      uint64
}

// CheckpointBlock archives finalized transactions for a slot. Entries are
// sorted by transaction ID; Proofs carry the finality proofs inline in the
// same order, or are empty when peers are expected to fetch them.
type CheckpointBlock struct {
	Header    *CheckpointBlockHeader
	Entries   []*CheckpointEntry
	Proofs    []*FinalityProof
	Rewards   []*Reward
	Signature []byte
}
