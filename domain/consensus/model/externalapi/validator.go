package externalapi

import (
	"sort"

	"github.com/btcsuite/btcutil/base58"
	"github.com/pkg/errors"
)

// validatorIDVersion is the base58check version byte of validator IDs.
const validatorIDVersion = 0x54

// ValidatorID is the hash of a validator's signing public key.
type ValidatorID DomainHash

// String returns the base58check encoding of the ID.
func (id ValidatorID) String() string {
	return base58.CheckEncode(id[:], validatorIDVersion)
}

// Less returns whether id sorts before other.
func (id ValidatorID) Less(other ValidatorID) bool {
	return DomainHash(id).Less(DomainHash(other))
}

// ValidatorIDFromString decodes a base58check validator ID.
func ValidatorIDFromString(s string) (ValidatorID, error) {
	decoded, version, err := base58.CheckDecode(s)
	if err != nil {
		return ValidatorID{}, errors.Wrapf(err, "malformed validator ID %s", s)
	}
	if version != validatorIDVersion {
		return ValidatorID{}, errors.Errorf("validator ID %s has version %d, expected %d", s, version, validatorIDVersion)
	}
	hash, err := NewDomainHashFromByteSlice(decoded)
	if err != nil {
		return ValidatorID{}, err
	}
	return ValidatorID(hash), nil
}

// StakeTier is the collateral tier of a validator.
type StakeTier uint8

// Stake tiers, in increasing order of collateral.
const (
	StakeTierFree StakeTier = iota
	StakeTierBronze
	StakeTierSilver
	StakeTierGold
)

var stakeTierWeights = map[StakeTier]uint64{
	StakeTierFree:   1,
	StakeTierBronze: 10,
	StakeTierSilver: 100,
	StakeTierGold:   1000,
}

// Weight returns the sampling and voting weight of the tier, or zero for an
// unknown tier.
func (tier StakeTier) Weight() uint64 {
	return stakeTierWeights[tier]
}

func (tier StakeTier) String() string {
	switch tier {
	case StakeTierFree:
		return "free"
	case StakeTierBronze:
		return "bronze"
	case StakeTierSilver:
		return "silver"
	case StakeTierGold:
		return "gold"
	}
	return "unknown"
}

// Validator is a member of the active validator set.
type Validator struct {
	ID           ValidatorID
	PublicKey    []byte
	Weight       uint64
	VRFPublicKey []byte
}

// ValidatorSetSnapshot is the immutable validator set of a slot.
type ValidatorSetSnapshot struct {
	slot        uint64
	validators  []*Validator
	totalWeight uint64
}

// NewValidatorSetSnapshot builds a snapshot for slot. Validators are sorted
// by ID; duplicate IDs and zero weights are rejected.
func NewValidatorSetSnapshot(slot uint64, validators []*Validator) (*ValidatorSetSnapshot, error) {
	sorted := make([]*Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Less(sorted[j].ID) })

	var totalWeight uint64
	for i, validator := range sorted {
		if validator.Weight == 0 {
			return nil, errors.Errorf("validator %s has zero weight", validator.ID)
		}
		if i > 0 && sorted[i-1].ID == validator.ID {
			return nil, errors.Errorf("validator %s appears twice in the snapshot of slot %d", validator.ID, slot)
		}
		if totalWeight+validator.Weight < totalWeight {
			return nil, errors.Errorf("total weight of slot %d overflows", slot)
		}
		totalWeight += validator.Weight
	}
	return &ValidatorSetSnapshot{slot: slot, validators: sorted, totalWeight: totalWeight}, nil
}

// Slot returns the slot the snapshot belongs to.
func (s *ValidatorSetSnapshot) Slot() uint64 {
	return s.slot
}

// TotalWeight returns the sum of the weights of every member.
func (s *ValidatorSetSnapshot) TotalWeight() uint64 {
	return s.totalWeight
}

// Len returns the number of members.
func (s *ValidatorSetSnapshot) Len() int {
	return len(s.validators)
}

// Validators returns the members sorted by ID. The returned slice must not
// be modified.
func (s *ValidatorSetSnapshot) Validators() []*Validator {
	return s.validators
}

// Validator returns the member with the given ID.
func (s *ValidatorSetSnapshot) Validator(id ValidatorID) (*Validator, bool) {
	i := sort.Search(len(s.validators), func(i int) bool { return !s.validators[i].ID.Less(id) })
	if i < len(s.validators) && s.validators[i].ID == id {
		return s.validators[i], true
	}
	return nil, false
}

// Equal returns whether both snapshots have the same slot and members.
func (s *ValidatorSetSnapshot) Equal(other *ValidatorSetSnapshot) bool {
	if s.slot != other.slot || len(s.validators) != len(other.validators) {
		return false
	}
	for i, validator := range s.validators {
		otherValidator := other.validators[i]
		if validator.ID != otherValidator.ID || validator.Weight != otherValidator.Weight ||
			string(validator.PublicKey) != string(otherValidator.PublicKey) ||
			string(validator.VRFPublicKey) != string(otherValidator.VRFPublicKey) {
			return false
		}
	}
	return true
}
