// Package vrf implements a verifiable random function on top of BLS
// signatures over BLS12-381. BLS signatures are deterministic and unique
// per (key, message), so the hash of a signature is a pseudorandom output
// that anyone holding the public key can verify.
package vrf

import (
	"crypto/rand"
	"io"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/hashes"
	"github.com/timecoin/timed/domain/consensus/utils/serialization"
)

const seedSize = 32

// PrivateKey is a VRF secret key.
type PrivateKey struct {
	key *bls.PrivateKey[bls.G1]
}

// GenerateKey creates a new VRF key from a random seed.
func GenerateKey() (*PrivateKey, error) {
	seed := make([]byte, seedSize)
	_, err := io.ReadFull(rand.Reader, seed)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return KeyFromSeed(seed)
}

// KeyFromSeed deterministically derives a VRF key from a seed of at least
// 32 bytes.
func KeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) < seedSize {
		return nil, errors.Errorf("VRF seed must be at least %d bytes, got %d", seedSize, len(seed))
	}
	key, err := bls.KeyGen[bls.G1](seed, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive VRF key")
	}
	return &PrivateKey{key: key}, nil
}

// DeserializePrivateKey parses a key serialized by Serialize.
func DeserializePrivateKey(data []byte) (*PrivateKey, error) {
	key := new(bls.PrivateKey[bls.G1])
	err := key.UnmarshalBinary(data)
	if err != nil {
		return nil, errors.Wrap(err, "malformed VRF private key")
	}
	return &PrivateKey{key: key}, nil
}

// Serialize returns the binary encoding of the key.
func (k *PrivateKey) Serialize() ([]byte, error) {
	data, err := k.key.MarshalBinary()
	return data, errors.WithStack(err)
}

// PublicKey returns the serialized public key.
func (k *PrivateKey) PublicKey() ([]byte, error) {
	data, err := k.key.PublicKey().MarshalBinary()
	return data, errors.WithStack(err)
}

// Input returns the VRF input of a slot: it binds the previous block
// hash, the slot time and the network.
func Input(prevHash externalapi.DomainHash, slotTime int64, networkID externalapi.NetworkID) []byte {
	writer := hashes.NewVRFInputWriter()
	err := serialization.WriteElements(writer, prevHash, slotTime, networkID)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. Hash digest should never return an error"))
	}
	hash := writer.Finalize()
	return hash[:]
}

// Prove evaluates the VRF on input and returns the output and its proof.
func (k *PrivateKey) Prove(input []byte) (output externalapi.DomainHash, proof []byte) {
	proof = bls.Sign(k.key, input)
	return outputFromProof(proof), proof
}

// Verify checks proof against the serialized public key and input, and
// returns the VRF output it proves.
func Verify(publicKey []byte, input []byte, proof []byte) (externalapi.DomainHash, bool) {
	key := new(bls.PublicKey[bls.G1])
	err := key.UnmarshalBinary(publicKey)
	if err != nil || !key.Validate() {
		return externalapi.DomainHash{}, false
	}
	if !bls.Verify(key, input, proof) {
		return externalapi.DomainHash{}, false
	}
	return outputFromProof(proof), true
}

func outputFromProof(proof []byte) externalapi.DomainHash {
	writer := hashes.NewVRFOutputWriter()
	writer.InfallibleWrite(proof)
	return writer.Finalize()
}
