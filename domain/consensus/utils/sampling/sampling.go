package sampling

import (
	"math/rand"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// WeightedSample draws up to k distinct validators from candidates with
// probability proportional to weight, without replacement. Validators in
// exclude are never drawn. When fewer than k are eligible all of them are
// returned.
func WeightedSample(candidates []*externalapi.Validator, k int, rng *rand.Rand,
	exclude ...externalapi.ValidatorID) []*externalapi.Validator {

	pool := make([]*externalapi.Validator, 0, len(candidates))
	var totalWeight uint64
	for _, candidate := range candidates {
		if isExcluded(candidate.ID, exclude) || candidate.Weight == 0 {
			continue
		}
		pool = append(pool, candidate)
		totalWeight += candidate.Weight
	}
	if k >= len(pool) {
		return pool
	}

	sample := make([]*externalapi.Validator, 0, k)
	for len(sample) < k {
		target := uint64(rng.Int63n(int64(totalWeight)))
		var cumulative uint64
		for i, candidate := range pool {
			cumulative += candidate.Weight
			if target < cumulative {
				sample = append(sample, candidate)
				totalWeight -= candidate.Weight
				pool[i] = pool[len(pool)-1]
				pool = pool[:len(pool)-1]
				break
			}
		}
	}
	return sample
}

func isExcluded(id externalapi.ValidatorID, exclude []externalapi.ValidatorID) bool {
	for _, excluded := range exclude {
		if id == excluded {
			return true
		}
	}
	return false
}
