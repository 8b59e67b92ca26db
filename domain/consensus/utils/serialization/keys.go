package serialization

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

const outpointKeySize = externalapi.DomainHashSize + 4

// OutpointToKey returns a fixed-size database key of outpoint.
func OutpointToKey(outpoint externalapi.DomainOutpoint) []byte {
	key := make([]byte, outpointKeySize)
	copy(key, outpoint.TransactionID[:])
	binary.BigEndian.PutUint32(key[externalapi.DomainHashSize:], outpoint.Index)
	return key
}

// KeyToOutpoint is the inverse of OutpointToKey.
func KeyToOutpoint(key []byte) (externalapi.DomainOutpoint, error) {
	if len(key) != outpointKeySize {
		return externalapi.DomainOutpoint{}, errors.Wrapf(ErrMalformed, "outpoint key of length %d", len(key))
	}
	var outpoint externalapi.DomainOutpoint
	copy(outpoint.TransactionID[:], key)
	outpoint.Index = binary.BigEndian.Uint32(key[externalapi.DomainHashSize:])
	return outpoint, nil
}

// Uint64ToKey returns a big-endian database key so that cursors iterate
// in numeric order.
func Uint64ToKey(value uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, value)
	return key
}

// KeyToUint64 is the inverse of Uint64ToKey.
func KeyToUint64(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, errors.Wrapf(ErrMalformed, "uint64 key of length %d", len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}
