package checkpointproducer

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/dagconfig"
)

// calculateRewards distributes the block reward of a checkpoint block.
// The producer gets its bonus, the treasury its share, and the voting
// reward is split across the snapshot's members in proportion to their
// weight. Rounding dust goes to the producer. The result is sorted by
// validator ID and has no zero amounts.
func calculateRewards(params *dagconfig.Params, snapshot *externalapi.ValidatorSetSnapshot,
	producerID externalapi.ValidatorID) []*externalapi.Reward {

	amounts := make(map[externalapi.ValidatorID]uint64, snapshot.Len()+2)

	votingReward := params.VotingReward()
	var distributed uint64
	if snapshot.TotalWeight() > 0 {
		totalWeight := uint256.NewInt(snapshot.TotalWeight())
		for _, validator := range snapshot.Validators() {
			share := new(uint256.Int).Mul(uint256.NewInt(votingReward), uint256.NewInt(validator.Weight))
			share.Div(share, totalWeight)
			amounts[validator.ID] += share.Uint64()
			distributed += share.Uint64()
		}
	}
	amounts[producerID] += params.ProducerReward + votingReward - distributed
	amounts[params.TreasuryID] += params.TreasuryReward

	rewards := make([]*externalapi.Reward, 0, len(amounts))
	for validatorID, amount := range amounts {
		if amount == 0 {
			continue
		}
		rewards = append(rewards, &externalapi.Reward{ValidatorID: validatorID, Amount: amount})
	}
	sort.Slice(rewards, func(i, j int) bool { return rewards[i].ValidatorID.Less(rewards[j].ValidatorID) })
	return rewards
}

func rewardsEqual(a, b []*externalapi.Reward) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if *a[i] != *b[i] {
			return false
		}
	}
	return true
}
