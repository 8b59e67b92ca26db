package rewardstore

import (
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/testutils"
)

func TestCreditIsIdempotentPerHeight(t *testing.T) {
	store := New(testutils.OpenTestDatabase(t))
	alice := externalapi.ValidatorID{1}
	bob := externalapi.ValidatorID{2}

	rewards := []*externalapi.Reward{
		{ValidatorID: alice, Amount: 30},
		{ValidatorID: bob, Amount: 5},
		{ValidatorID: alice, Amount: 10},
	}
	for i := 0; i < 2; i++ {
		err := store.Credit(1, rewards)
		if err != nil {
			t.Fatalf("Credit: %+v", err)
		}
	}
	err := store.Credit(2, []*externalapi.Reward{{ValidatorID: bob, Amount: 7}})
	if err != nil {
		t.Fatalf("Credit: %+v", err)
	}

	for id, expected := range map[externalapi.ValidatorID]uint64{alice: 40, bob: 12} {
		balance, err := store.Balance(id)
		if err != nil {
			t.Fatalf("Balance: %+v", err)
		}
		if balance != expected {
			t.Fatalf("expected balance %d for %s, got %d", expected, id, balance)
		}
	}
}
