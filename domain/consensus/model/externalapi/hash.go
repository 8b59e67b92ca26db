package externalapi

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"
)

// DomainHashSize of array used to store hashes.
const DomainHashSize = 32

// DomainHash is the domain representation of a Hash. Hashes compare
// lexicographically, byte 0 being the most significant.
type DomainHash [DomainHashSize]byte

// ZeroHash is the DomainHash value of all zeros.
var ZeroHash DomainHash

// NewDomainHashFromByteSlice creates a DomainHash from a slice of exactly
// DomainHashSize bytes.
func NewDomainHashFromByteSlice(hashBytes []byte) (DomainHash, error) {
	var hash DomainHash
	if len(hashBytes) != DomainHashSize {
		return hash, errors.Errorf("invalid hash size. Want: %d, got: %d",
			DomainHashSize, len(hashBytes))
	}
	copy(hash[:], hashBytes)
	return hash, nil
}

// NewDomainHashFromString parses a hex encoded hash.
func NewDomainHashFromString(hashString string) (DomainHash, error) {
	expectedLength := DomainHashSize * 2
	if len(hashString) != expectedLength {
		return DomainHash{}, errors.Errorf("hash string length is %d, while it should be be %d",
			len(hashString), expectedLength)
	}
	hashBytes, err := hex.DecodeString(hashString)
	if err != nil {
		return DomainHash{}, errors.WithStack(err)
	}
	return NewDomainHashFromByteSlice(hashBytes)
}

// String returns the Hash as the hexadecimal string of the hash.
func (hash DomainHash) String() string {
	return hex.EncodeToString(hash[:])
}

// Less returns whether hash sorts before other.
func (hash DomainHash) Less(other DomainHash) bool {
	return bytes.Compare(hash[:], other[:]) < 0
}

// IsZero returns whether hash is ZeroHash.
func (hash DomainHash) IsZero() bool {
	return hash == ZeroHash
}
