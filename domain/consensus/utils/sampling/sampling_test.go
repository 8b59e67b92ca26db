package sampling

import (
	"math/rand"
	"testing"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

func validators(weights ...uint64) []*externalapi.Validator {
	result := make([]*externalapi.Validator, len(weights))
	for i, weight := range weights {
		result[i] = &externalapi.Validator{ID: externalapi.ValidatorID{byte(i + 1)}, Weight: weight}
	}
	return result
}

func TestWeightedSampleIsWithoutReplacement(t *testing.T) {
	candidates := validators(40, 30, 20, 10)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		sample := WeightedSample(candidates, 3, rng)
		if len(sample) != 3 {
			t.Fatalf("expected 3 validators, got %d", len(sample))
		}
		seen := make(map[externalapi.ValidatorID]struct{})
		for _, validator := range sample {
			if _, ok := seen[validator.ID]; ok {
				t.Fatalf("validator %s drawn twice in one sample", validator.ID)
			}
			seen[validator.ID] = struct{}{}
		}
	}
}

func TestWeightedSampleExcludesAndCaps(t *testing.T) {
	candidates := validators(40, 30, 20, 10)
	rng := rand.New(rand.NewSource(2))

	sample := WeightedSample(candidates, 10, rng, candidates[0].ID)
	if len(sample) != 3 {
		t.Fatalf("expected every eligible validator, got %d", len(sample))
	}
	for _, validator := range sample {
		if validator.ID == candidates[0].ID {
			t.Fatalf("excluded validator was drawn")
		}
	}
}

func TestWeightedSampleFollowsWeight(t *testing.T) {
	candidates := validators(900, 100)
	rng := rand.New(rand.NewSource(3))
	heavy := 0
	const draws = 10000
	for i := 0; i < draws; i++ {
		if WeightedSample(candidates, 1, rng)[0].ID == candidates[0].ID {
			heavy++
		}
	}
	// Expected 9000; allow a generous margin.
	if heavy < 8700 || heavy > 9300 {
		t.Fatalf("heavy validator drawn %d/%d times, expected about 90%%", heavy, draws)
	}
}
