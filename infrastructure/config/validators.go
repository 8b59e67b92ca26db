package config

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

// validatorEntry is one element of the validators file. Weight, when set,
// takes precedence over the tier and is meant for development networks.
type validatorEntry struct {
	PublicKey    string `json:"publicKey"`
	VRFPublicKey string `json:"vrfPublicKey"`
	Tier         string `json:"tier"`
	Weight       uint64 `json:"weight"`
}

// LoadValidatorsFile reads the static validator set from a JSON file
// holding an array of {publicKey, vrfPublicKey, tier, weight} objects.
func LoadValidatorsFile(path string) ([]*externalapi.Validator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	var entries []*validatorEntry
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	err = decoder.Decode(&entries)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed validators file %s", path)
	}
	return parseValidatorEntries(entries)
}

func parseValidatorEntries(entries []*validatorEntry) ([]*externalapi.Validator, error) {
	if len(entries) == 0 {
		return nil, errors.New("the validator set is empty")
	}
	validators := make([]*externalapi.Validator, 0, len(entries))
	seen := make(map[externalapi.ValidatorID]struct{}, len(entries))
	for i, entry := range entries {
		publicKey, err := hex.DecodeString(entry.PublicKey)
		if err != nil {
			return nil, errors.Wrapf(err, "validator %d has a malformed public key", i)
		}
		var vrfPublicKey []byte
		if entry.VRFPublicKey != "" {
			vrfPublicKey, err = hex.DecodeString(entry.VRFPublicKey)
			if err != nil {
				return nil, errors.Wrapf(err, "validator %d has a malformed VRF public key", i)
			}
		}

		weight := entry.Weight
		if weight == 0 {
			tier, err := parseStakeTier(entry.Tier)
			if err != nil {
				return nil, errors.Wrapf(err, "validator %d", i)
			}
			weight = tier.Weight()
		}

		id := consensushashing.ValidatorID(publicKey)
		if _, ok := seen[id]; ok {
			return nil, errors.Errorf("validator %s is listed more than once", id)
		}
		seen[id] = struct{}{}

		validators = append(validators, &externalapi.Validator{
			ID:           id,
			PublicKey:    publicKey,
			Weight:       weight,
			VRFPublicKey: vrfPublicKey,
		})
	}
	return validators, nil
}

func parseStakeTier(name string) (externalapi.StakeTier, error) {
	for _, tier := range []externalapi.StakeTier{externalapi.StakeTierFree, externalapi.StakeTierBronze,
		externalapi.StakeTierSilver, externalapi.StakeTierGold} {

		if strings.EqualFold(name, tier.String()) {
			return tier, nil
		}
	}
	return 0, errors.Errorf("unknown stake tier %q", name)
}

// MarshalValidatorEntry renders validator as an element of the validators
// file, with its weight given by tier.
func MarshalValidatorEntry(validator *externalapi.Validator, tier externalapi.StakeTier) ([]byte, error) {
	entry, err := json.MarshalIndent(&validatorEntry{
		PublicKey:    hex.EncodeToString(validator.PublicKey),
		VRFPublicKey: hex.EncodeToString(validator.VRFPublicKey),
		Tier:         tier.String(),
	}, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return entry, nil
}
