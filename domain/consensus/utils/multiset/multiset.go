package multiset

import (
	"bytes"

	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

// Multiset is an order independent commitment to a set of archived spends.
type Multiset struct {
	ms *muhash.MuHash
}

// New returns an empty multiset.
func New() *Multiset {
	return &Multiset{ms: muhash.NewMuHash()}
}

// FromBytes deserializes the given bytes slice and returns a multiset.
func FromBytes(multisetBytes []byte) (*Multiset, error) {
	serialized := &muhash.SerializedMuHash{}
	if len(serialized) != len(multisetBytes) {
		return nil, errors.Errorf("mutliset bytes expected to be in length of %d but got %d",
			len(serialized), len(multisetBytes))
	}
	copy(serialized[:], multisetBytes)
	ms, err := muhash.DeserializeMuHash(serialized)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Multiset{ms: ms}, nil
}

// AddSpend adds the archival of outpoint by spender to the multiset.
func (m *Multiset) AddSpend(outpoint externalapi.DomainOutpoint, spender externalapi.DomainTransactionID) {
	m.ms.Add(spendBytes(outpoint, spender))
}

// RemoveSpend undoes AddSpend.
func (m *Multiset) RemoveSpend(outpoint externalapi.DomainOutpoint, spender externalapi.DomainTransactionID) {
	m.ms.Remove(spendBytes(outpoint, spender))
}

// Hash returns the commitment of the current set.
func (m *Multiset) Hash() externalapi.DomainHash {
	return externalapi.DomainHash(m.ms.Finalize())
}

// Serialize returns the serialized multiset state.
func (m *Multiset) Serialize() []byte {
	return m.ms.Serialize()[:]
}

// Clone returns an independent copy of the multiset.
func (m *Multiset) Clone() *Multiset {
	return &Multiset{ms: m.ms.Clone()}
}

func spendBytes(outpoint externalapi.DomainOutpoint, spender externalapi.DomainTransactionID) []byte {
	buf := &bytes.Buffer{}
	err := serialization.WriteElements(buf, outpoint, spender)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. serializing into memory should never fail"))
	}
	return buf.Bytes()
}
