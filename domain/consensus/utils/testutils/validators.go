package testutils

import (
	"sort"
	"testing"

	"github.com/kaspanet/go-secp256k1"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/signing"
	"github.com/timecoin/timed/domain/consensus/utils/vrf"
)

// TestValidator is a validator together with its secret keys.
type TestValidator struct {
	*externalapi.Validator
	SigningKey *secp256k1.SchnorrKeyPair
	VRFKey     *vrf.PrivateKey
}

// NewTestValidators creates one validator per weight, sorted by ID.
func NewTestValidators(t testing.TB, weights ...uint64) []*TestValidator {
	validators := make([]*TestValidator, len(weights))
	for i, weight := range weights {
		signingKey, err := signing.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %+v", err)
		}
		vrfKey, err := vrf.GenerateKey()
		if err != nil {
			t.Fatalf("vrf.GenerateKey: %+v", err)
		}
		publicKey, err := signing.SerializedPublicKey(signingKey)
		if err != nil {
			t.Fatalf("SerializedPublicKey: %+v", err)
		}
		vrfPublicKey, err := vrfKey.PublicKey()
		if err != nil {
			t.Fatalf("vrf PublicKey: %+v", err)
		}
		validators[i] = &TestValidator{
			Validator: &externalapi.Validator{
				ID:           consensushashing.ValidatorID(publicKey),
				PublicKey:    publicKey,
				Weight:       weight,
				VRFPublicKey: vrfPublicKey,
			},
			SigningKey: signingKey,
			VRFKey:     vrfKey,
		}
	}
	sort.Slice(validators, func(i, j int) bool { return validators[i].ID.Less(validators[j].ID) })
	return validators
}

// Validators returns the public part of every test validator.
func Validators(testValidators []*TestValidator) []*externalapi.Validator {
	validators := make([]*externalapi.Validator, len(testValidators))
	for i, testValidator := range testValidators {
		validators[i] = testValidator.Validator
	}
	return validators
}

// SignVote creates a vote of validator for tx in slot.
func (v *TestValidator) SignVote(t testing.TB, networkID externalapi.NetworkID,
	tx *externalapi.DomainTransaction, slot uint64) *externalapi.SignedVote {

	vote := &externalapi.SignedVote{
		NetworkID:     networkID,
		TransactionID: consensushashing.TransactionID(tx),
		Commitment:    consensushashing.TransactionCommitment(tx),
		Slot:          slot,
		VoterID:       v.ID,
		VoterWeight:   v.Weight,
	}
	err := signing.SignVote(v.SigningKey, vote)
	if err != nil {
		t.Fatalf("SignVote: %+v", err)
	}
	return vote
}
