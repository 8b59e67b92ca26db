package consensushashing

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/hashes"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// TransactionID returns the ID of tx. Signature scripts are excluded so
// that re-signing a transaction does not change its ID.
func TransactionID(tx *externalapi.DomainTransaction) externalapi.DomainTransactionID {
	writer := hashes.NewTransactionIDWriter()
	mustHash(serialization.SerializeTransaction(writer, tx, false))
	return externalapi.DomainTransactionID(writer.Finalize())
}

// TransactionCommitment returns the hash of the full canonical bytes of tx.
func TransactionCommitment(tx *externalapi.DomainTransaction) externalapi.DomainHash {
	writer := hashes.NewTransactionCommitmentWriter()
	mustHash(serialization.SerializeTransaction(writer, tx, true))
	return writer.Finalize()
}

// SignedVoteHash returns the hash a vote's signature covers.
func SignedVoteHash(vote *externalapi.SignedVote) externalapi.DomainHash {
	writer := hashes.NewSignedVoteWriter()
	mustHash(serialization.SerializeSignedVote(writer, vote, false))
	return writer.Finalize()
}

// FinalityProofHash returns the hash of the full proof encoding.
func FinalityProofHash(proof *externalapi.FinalityProof) externalapi.DomainHash {
	writer := hashes.NewFinalityProofWriter()
	mustHash(serialization.SerializeFinalityProof(writer, proof))
	return writer.Finalize()
}

// BlockHash returns the hash of the block header. The producer signature
// is over this hash.
func BlockHash(header *externalapi.CheckpointBlockHeader) externalapi.DomainHash {
	writer := hashes.NewBlockHashWriter()
	mustHash(serialization.SerializeBlockHeader(writer, header))
	return writer.Finalize()
}

// ValidatorID derives the validator ID from a serialized public key.
func ValidatorID(publicKey []byte) externalapi.ValidatorID {
	writer := hashes.NewValidatorIDWriter()
	writer.InfallibleWrite(publicKey)
	return externalapi.ValidatorID(writer.Finalize())
}

// It seems like this could only happen if the writer returned an error.
// and this writer should never return an error (no allocations or possible failures)
// the only non-writer error path here is unknown types in `WriteElement`
func mustHash(err error) {
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
}
