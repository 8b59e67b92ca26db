package signing

import (
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// GenerateKeyPair creates a new random Schnorr key pair.
func GenerateKeyPair() (*secp256k1.SchnorrKeyPair, error) {
	keyPair, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate a schnorr key pair")
	}
	return keyPair, nil
}

// DeserializeKeyPair parses a serialized private key.
func DeserializeKeyPair(privateKey []byte) (*secp256k1.SchnorrKeyPair, error) {
	keyPair, err := secp256k1.DeserializeSchnorrPrivateKeyFromSlice(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "malformed private key")
	}
	return keyPair, nil
}

// SerializePrivateKey returns the 32 byte private key of keyPair.
func SerializePrivateKey(keyPair *secp256k1.SchnorrKeyPair) []byte {
	return keyPair.SerializePrivateKey()[:]
}

// SerializedPublicKey returns the serialized public key of keyPair.
func SerializedPublicKey(keyPair *secp256k1.SchnorrKeyPair) ([]byte, error) {
	publicKey, err := keyPair.SchnorrPublicKey()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	serialized, err := publicKey.Serialize()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return serialized[:], nil
}

// SignHash signs hash with keyPair and returns the serialized signature.
func SignHash(keyPair *secp256k1.SchnorrKeyPair, hash externalapi.DomainHash) ([]byte, error) {
	secpHash := secp256k1.Hash(hash)
	signature, err := keyPair.SchnorrSign(&secpHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign")
	}
	return signature.Serialize()[:], nil
}

// VerifyHash checks a serialized signature of hash against a serialized
// public key. Malformed keys or signatures do not verify.
func VerifyHash(publicKey []byte, hash externalapi.DomainHash, signature []byte) bool {
	schnorrPublicKey, err := secp256k1.DeserializeSchnorrPubKey(publicKey)
	if err != nil {
		return false
	}
	schnorrSignature, err := secp256k1.DeserializeSchnorrSignatureFromSlice(signature)
	if err != nil {
		return false
	}
	secpHash := secp256k1.Hash(hash)
	return schnorrPublicKey.SchnorrVerify(&secpHash, schnorrSignature)
}

// SignVote fills vote.Signature with a signature over every other field.
func SignVote(keyPair *secp256k1.SchnorrKeyPair, vote *externalapi.SignedVote) error {
	signature, err := SignHash(keyPair, consensushashing.SignedVoteHash(vote))
	if err != nil {
		return err
	}
	vote.Signature = signature
	return nil
}

// VerifyVote checks the vote signature against the voter's public key.
func VerifyVote(publicKey []byte, vote *externalapi.SignedVote) bool {
	return VerifyHash(publicKey, consensushashing.SignedVoteHash(vote), vote.Signature)
}

// SignBlock fills block.Signature with a signature over the header hash.
func SignBlock(keyPair *secp256k1.SchnorrKeyPair, block *externalapi.CheckpointBlock) error {
	signature, err := SignHash(keyPair, consensushashing.BlockHash(block.Header))
	if err != nil {
		return err
	}
	block.Signature = signature
	return nil
}

// VerifyBlock checks the producer signature of block.
func VerifyBlock(publicKey []byte, block *externalapi.CheckpointBlock) bool {
	return VerifyHash(publicKey, consensushashing.BlockHash(block.Header), block.Signature)
}
