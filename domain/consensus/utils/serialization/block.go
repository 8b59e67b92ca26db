package serialization

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const (
	maxBlockEntries = 1_000_000
	maxBlockRewards = 100_000
)

// SerializeBlockHeader writes header to w. This is the encoding the block
// hash and the producer signature are computed over.
func SerializeBlockHeader(w io.Writer, header *externalapi.CheckpointBlockHeader) error {
	return WriteElements(w, header.Version, header.Height, header.Slot, header.SlotTime,
		header.PrevHash, header.ProducerID, header.VRFOutput, header.VRFProof,
		header.EntriesRoot, header.UTXOCommitment, header.RewardsRoot)
}

// DeserializeBlockHeader reads a header written by SerializeBlockHeader.
func DeserializeBlockHeader(r io.Reader) (*externalapi.CheckpointBlockHeader, error) {
	header := &externalapi.CheckpointBlockHeader{}
	err := ReadElements(r, &header.Version, &header.Height, &header.Slot, &header.SlotTime,
		&header.PrevHash, &header.ProducerID, &header.VRFOutput, &header.VRFProof,
		&header.EntriesRoot, &header.UTXOCommitment, &header.RewardsRoot)
	if err != nil {
		return nil, err
	}
	return header, nil
}

// SerializeCheckpointEntry writes a single entry, the merkle leaf encoding.
func SerializeCheckpointEntry(w io.Writer, entry *externalapi.CheckpointEntry) error {
	return WriteElements(w, entry.TransactionID, entry.ProofHash)
}

// SerializeReward writes a single reward, the merkle leaf encoding.
func SerializeReward(w io.Writer, reward *externalapi.Reward) error {
	return WriteElements(w, reward.ValidatorID, reward.Amount)
}

// SerializeCheckpointBlock writes the full block to w.
func SerializeCheckpointBlock(w io.Writer, block *externalapi.CheckpointBlock) error {
	err := SerializeBlockHeader(w, block.Header)
	if err != nil {
		return err
	}
	err = WriteElement(w, uint64(len(block.Entries)))
	if err != nil {
		return err
	}
	for _, entry := range block.Entries {
		err = SerializeCheckpointEntry(w, entry)
		if err != nil {
			return err
		}
	}
	err = WriteElement(w, uint64(len(block.Proofs)))
	if err != nil {
		return err
	}
	for _, proof := range block.Proofs {
		err = SerializeFinalityProof(w, proof)
		if err != nil {
			return err
		}
	}
	err = WriteElement(w, uint64(len(block.Rewards)))
	if err != nil {
		return err
	}
	for _, reward := range block.Rewards {
		err = SerializeReward(w, reward)
		if err != nil {
			return err
		}
	}
	return WriteElement(w, block.Signature)
}

// DeserializeCheckpointBlock reads a block written by SerializeCheckpointBlock.
func DeserializeCheckpointBlock(r io.Reader) (*externalapi.CheckpointBlock, error) {
	header, err := DeserializeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	block := &externalapi.CheckpointBlock{Header: header}

	entryCount, err := ReadCount(r, maxBlockEntries)
	if err != nil {
		return nil, err
	}
	block.Entries = make([]*externalapi.CheckpointEntry, entryCount)
	for i := range block.Entries {
		entry := &externalapi.CheckpointEntry{}
		err = ReadElements(r, &entry.TransactionID, &entry.ProofHash)
		if err != nil {
			return nil, err
		}
		block.Entries[i] = entry
	}

	proofCount, err := ReadCount(r, maxBlockEntries)
	if err != nil {
		return nil, err
	}
	block.Proofs = make([]*externalapi.FinalityProof, proofCount)
	for i := range block.Proofs {
		block.Proofs[i], err = DeserializeFinalityProof(r)
		if err != nil {
			return nil, err
		}
	}

	rewardCount, err := ReadCount(r, maxBlockRewards)
	if err != nil {
		return nil, err
	}
	block.Rewards = make([]*externalapi.Reward, rewardCount)
	for i := range block.Rewards {
		reward := &externalapi.Reward{}
		err = ReadElements(r, &reward.ValidatorID, &reward.Amount)
		if err != nil {
			return nil, err
		}
		block.Rewards[i] = reward
	}

	err = ReadElement(r, &block.Signature)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// CheckpointBlockToBytes returns the serialization of block.
func CheckpointBlockToBytes(block *externalapi.CheckpointBlock) []byte {
	buf := &bytes.Buffer{}
	mustSerialize(SerializeCheckpointBlock(buf, block))
	return buf.Bytes()
}

// BytesToCheckpointBlock is the inverse of CheckpointBlockToBytes.
func BytesToCheckpointBlock(data []byte) (*externalapi.CheckpointBlock, error) {
	r := bytes.NewReader(data)
	block, err := DeserializeCheckpointBlock(r)
	if err != nil {
		return nil, err
	}
	return block, ensureConsumed(r)
}

// mustSerialize panics on errors that can only come from a broken writer.
// Every caller serializes into a bytes.Buffer or a hash writer.
func mustSerialize(err error) {
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. serializing into memory should never fail"))
	}
}

func ensureConsumed(r *bytes.Reader) error {
	if r.Len() != 0 {
		return errors.Wrapf(ErrMalformed, "%d trailing bytes", r.Len())
	}
	return nil
}
