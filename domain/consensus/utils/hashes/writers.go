package hashes

import (
	"hash"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"golang.org/x/crypto/blake2b"
)

// Each hash domain keys blake2b with its own tag so that an encoding of
// one kind of object can never collide with the hash of another kind.
const (
	transactionIDDomain         = "TransactionID"
	transactionCommitmentDomain = "TransactionCommitment"
	signedVoteDomain            = "SignedVote"
	finalityProofDomain         = "FinalityProof"
	blockHashDomain             = "CheckpointBlockHash"
	merkleBranchDomain          = "MerkleBranchHash"
	validatorIDDomain           = "ValidatorID"
	vrfInputDomain              = "timed-vrf"
	vrfOutputDomain             = "VRFOutput"
)

// HashWriter is used to incrementally hash data without concatenating all of the data to a single buffer
// it exposes an io.Writer api and a Finalize function to get the resulting hash.
// The used hash function is blake2b.
// This can only be created via one of the domain separated constructors
type HashWriter struct {
	hash.Hash
}

// InfallibleWrite is just like write but doesn't return anything
func (h HashWriter) InfallibleWrite(p []byte) {
	// This write can never return an error, this is part of the hash.Hash interface contract.
	_, err := h.Write(p)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. hash.Hash interface promises to not return errors."))
	}
}

// Finalize returns the resulting hash
func (h HashWriter) Finalize() externalapi.DomainHash {
	var sum externalapi.DomainHash
	copy(sum[:], h.Sum(nil))
	return sum
}

func newHashWriter(domain string) HashWriter {
	blake, err := blake2b.New256([]byte(domain))
	if err != nil {
		panic(errors.Wrapf(err, "this should never happen. %s is less than 64 bytes", domain))
	}
	return HashWriter{blake}
}

// NewTransactionIDWriter returns a new HashWriter used for transaction IDs.
func NewTransactionIDWriter() HashWriter {
	return newHashWriter(transactionIDDomain)
}

// NewTransactionCommitmentWriter returns a new HashWriter used for the
// commitment to the full transaction bytes that votes sign.
func NewTransactionCommitmentWriter() HashWriter {
	return newHashWriter(transactionCommitmentDomain)
}

// NewSignedVoteWriter returns a new HashWriter used for vote signing hashes.
func NewSignedVoteWriter() HashWriter {
	return newHashWriter(signedVoteDomain)
}

// NewFinalityProofWriter returns a new HashWriter used for proof hashes.
func NewFinalityProofWriter() HashWriter {
	return newHashWriter(finalityProofDomain)
}

// NewBlockHashWriter returns a new HashWriter used for checkpoint block hashes.
func NewBlockHashWriter() HashWriter {
	return newHashWriter(blockHashDomain)
}

// NewMerkleBranchHashWriter returns a new HashWriter used for merkle tree branches.
func NewMerkleBranchHashWriter() HashWriter {
	return newHashWriter(merkleBranchDomain)
}

// NewValidatorIDWriter returns a new HashWriter used to derive validator
// IDs from public keys.
func NewValidatorIDWriter() HashWriter {
	return newHashWriter(validatorIDDomain)
}

// NewVRFInputWriter returns a new HashWriter used for VRF inputs.
func NewVRFInputWriter() HashWriter {
	return newHashWriter(vrfInputDomain)
}

// NewVRFOutputWriter returns a new HashWriter used to derive VRF outputs
// from VRF proofs.
func NewVRFOutputWriter() HashWriter {
	return newHashWriter(vrfOutputDomain)
}
