package dagconfig

import (
	"testing"
	"time"
)

func TestFinalityThreshold(t *testing.T) {
	tests := []struct {
		total    uint64
		expected uint64
	}{
		{total: 100, expected: 67},
		{total: 99, expected: 66},
		{total: 3, expected: 2},
		{total: 1, expected: 1},
		{total: 0, expected: 0},
		{total: 4000, expected: 2667},
	}
	for _, test := range tests {
		threshold := FinalityThreshold(test.total)
		if threshold != test.expected {
			t.Errorf("FinalityThreshold(%d): expected %d, got %d", test.total, test.expected, threshold)
		}
	}
}

func TestSlotClock(t *testing.T) {
	params := MainnetParams
	at := time.Unix(600*100+599, 0)
	if slot := params.SlotAt(at); slot != 100 {
		t.Fatalf("SlotAt: expected slot 100, got %d", slot)
	}
	if slotTime := params.SlotTime(100); slotTime != 60000 {
		t.Fatalf("SlotTime: expected 60000, got %d", slotTime)
	}
}

func TestRewardSchedule(t *testing.T) {
	for _, params := range []*Params{&MainnetParams, &TestnetParams, &SimnetParams, &DevnetParams} {
		if params.VotingReward() != 65*UnitsPerTime {
			t.Errorf("%s: expected a voting reward of 65 TIME, got %d", params.Name, params.VotingReward())
		}
		if params.Alpha > params.K {
			t.Errorf("%s: alpha %d exceeds k %d", params.Name, params.Alpha, params.K)
		}
	}
}

func TestGenesisOutpointsAreNetworkBound(t *testing.T) {
	testnet := TestnetParams.GenesisOutpoints()
	devnet := DevnetParams.GenesisOutpoints()
	if len(testnet) != len(TestnetParams.GenesisOutputs) {
		t.Fatalf("expected %d testnet genesis outpoints, got %d", len(TestnetParams.GenesisOutputs), len(testnet))
	}
	if testnet[0].TransactionID == devnet[0].TransactionID {
		t.Fatalf("testnet and devnet share a genesis transaction ID")
	}
	for i, outpoint := range testnet {
		if outpoint.Index != uint32(i) {
			t.Fatalf("genesis outpoint %d has index %d", i, outpoint.Index)
		}
	}
}
