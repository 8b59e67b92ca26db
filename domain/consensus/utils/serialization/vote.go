package serialization

import (
	"bytes"
	"io"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const maxProofVotes = 100_000

// SerializeSignedVote writes vote to w, with or without its signature.
// The encoding without the signature is the signed message.
func SerializeSignedVote(w io.Writer, vote *externalapi.SignedVote, includeSignature bool) error {
	err := WriteElements(w, vote.NetworkID, vote.TransactionID, vote.Commitment, vote.Slot,
		vote.VoterID, vote.VoterWeight)
	if err != nil {
		return err
	}
	if !includeSignature {
		return nil
	}
	return WriteElement(w, vote.Signature)
}

// DeserializeSignedVote reads a vote written with its signature.
func DeserializeSignedVote(r io.Reader) (*externalapi.SignedVote, error) {
	vote := &externalapi.SignedVote{}
	err := ReadElements(r, &vote.NetworkID, &vote.TransactionID, &vote.Commitment, &vote.Slot,
		&vote.VoterID, &vote.VoterWeight, &vote.Signature)
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// SerializeFinalityProof writes proof to w.
func SerializeFinalityProof(w io.Writer, proof *externalapi.FinalityProof) error {
	err := SerializeTransaction(w, proof.Transaction, true)
	if err != nil {
		return err
	}
	err = WriteElements(w, proof.Slot, uint64(len(proof.Votes)))
	if err != nil {
		return err
	}
	for _, vote := range proof.Votes {
		err = SerializeSignedVote(w, vote, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeserializeFinalityProof reads a proof written by SerializeFinalityProof.
func DeserializeFinalityProof(r io.Reader) (*externalapi.FinalityProof, error) {
	tx, err := DeserializeTransaction(r)
	if err != nil {
		return nil, err
	}
	proof := &externalapi.FinalityProof{Transaction: tx}
	err = ReadElement(r, &proof.Slot)
	if err != nil {
		return nil, err
	}
	voteCount, err := ReadCount(r, maxProofVotes)
	if err != nil {
		return nil, err
	}
	proof.Votes = make([]*externalapi.SignedVote, voteCount)
	for i := range proof.Votes {
		proof.Votes[i], err = DeserializeSignedVote(r)
		if err != nil {
			return nil, err
		}
	}
	return proof, nil
}

// FinalityProofToBytes returns the serialization of proof.
func FinalityProofToBytes(proof *externalapi.FinalityProof) []byte {
	buf := &bytes.Buffer{}
	mustSerialize(SerializeFinalityProof(buf, proof))
	return buf.Bytes()
}

// BytesToFinalityProof is the inverse of FinalityProofToBytes.
func BytesToFinalityProof(data []byte) (*externalapi.FinalityProof, error) {
	r := bytes.NewReader(data)
	proof, err := DeserializeFinalityProof(r)
	if err != nil {
		return nil, err
	}
	return proof, ensureConsumed(r)
}
