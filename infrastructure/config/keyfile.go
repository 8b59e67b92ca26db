package config

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
)

// ValidatorKeys are the secret keys of the local validator.
type ValidatorKeys struct {
	SigningKey *secp256k1.SchnorrKeyPair
	VRFKey     *vrf.PrivateKey
}

type keyFileContent struct {
	SigningKey string `json:"signingKey"`
	VRFKey     string `json:"vrfKey"`
}

// GenerateValidatorKeys creates a fresh set of validator keys.
func GenerateValidatorKeys() (*ValidatorKeys, error) {
	signingKey, err := signing.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	vrfKey, err := vrf.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &ValidatorKeys{SigningKey: signingKey, VRFKey: vrfKey}, nil
}

// Validator returns the validator entry the keys correspond to.
func (keys *ValidatorKeys) Validator(weight uint64) (*externalapi.Validator, error) {
	publicKey, err := signing.SerializedPublicKey(keys.SigningKey)
	if err != nil {
		return nil, err
	}
	vrfPublicKey, err := keys.VRFKey.PublicKey()
	if err != nil {
		return nil, err
	}
	return &externalapi.Validator{
		ID:           consensushashing.ValidatorID(publicKey),
		PublicKey:    publicKey,
		Weight:       weight,
		VRFPublicKey: vrfPublicKey,
	}, nil
}

// WriteKeyFile stores keys at path, readable only by the owner. It refuses
// to overwrite an existing file.
func WriteKeyFile(path string, keys *ValidatorKeys) error {
	vrfKey, err := keys.VRFKey.Serialize()
	if err != nil {
		return err
	}
	content, err := json.MarshalIndent(&keyFileContent{
		SigningKey: hex.EncodeToString(signing.SerializePrivateKey(keys.SigningKey)),
		VRFKey:     hex.EncodeToString(vrfKey),
	}, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return errors.WithStack(err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()
	_, err = file.Write(content)
	return errors.WithStack(err)
}

// LoadKeyFile reads keys written by WriteKeyFile.
func LoadKeyFile(path string) (*ValidatorKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	content := &keyFileContent{}
	err = json.Unmarshal(data, content)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed key file %s", path)
	}

	signingKeyBytes, err := hex.DecodeString(content.SigningKey)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed signing key in %s", path)
	}
	signingKey, err := signing.DeserializeKeyPair(signingKeyBytes)
	if err != nil {
		return nil, err
	}
	vrfKeyBytes, err := hex.DecodeString(content.VRFKey)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed VRF key in %s", path)
	}
	vrfKey, err := vrf.DeserializePrivateKey(vrfKeyBytes)
	if err != nil {
		return nil, err
	}
	return &ValidatorKeys{SigningKey: signingKey, VRFKey: vrfKey}, nil
}
