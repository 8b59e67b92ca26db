package validatorsetmanager

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/dagconfig"
)

type validatorSetManager struct {
	params        *dagconfig.Params
	snapshotStore model.SnapshotStore
	eligibility   model.EligibilitySource
	clock         model.Clock
	localID       externalapi.ValidatorID

	// registry is every admitted validator, sorted by ID.
	registry []*externalapi.Validator

	publishLock sync.Mutex
}

// New instantiates a new ValidatorSetManager over the admitted validators.
// A nil eligibility source treats every admitted validator as eligible
// in every slot.
func New(params *dagconfig.Params,
	snapshotStore model.SnapshotStore,
	validators []*externalapi.Validator,
	eligibility model.EligibilitySource,
	clock model.Clock,
	localID externalapi.ValidatorID) (model.ValidatorSetManager, error) {

	// Building a throwaway snapshot validates and sorts the registry.
	registrySnapshot, err := externalapi.NewValidatorSetSnapshot(0, validators)
	if err != nil {
		return nil, err
	}
	if eligibility == nil {
		eligibility = allEligible{}
	}
	return &validatorSetManager{
		params:        params,
		snapshotStore: snapshotStore,
		eligibility:   eligibility,
		clock:         clock,
		localID:       localID,
		registry:      registrySnapshot.Validators(),
	}, nil
}

type allEligible struct{}

func (allEligible) IsEligible(externalapi.ValidatorID, uint64) bool {
	return true
}

func (vsm *validatorSetManager) CurrentSlot() uint64 {
	return vsm.params.SlotAt(vsm.clock.Now())
}

func (vsm *validatorSetManager) LocalValidatorID() externalapi.ValidatorID {
	return vsm.localID
}

// Snapshot returns the published snapshot of slot. The snapshot of the
// current slot is published on first use; any other unpublished or pruned
// slot is unavailable.
func (vsm *validatorSetManager) Snapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, error) {
	snapshot, found, err := vsm.snapshotStore.GetSnapshot(slot)
	if err != nil {
		return nil, err
	}
	if found {
		return snapshot, nil
	}
	if slot == vsm.CurrentSlot() {
		return vsm.PublishSnapshot(slot)
	}
	return nil, errors.Wrapf(ruleerrors.ErrSnapshotUnavailable, "no snapshot is held for slot %d", slot)
}

func (vsm *validatorSetManager) CurrentSnapshot() (*externalapi.ValidatorSetSnapshot, error) {
	return vsm.Snapshot(vsm.CurrentSlot())
}

func (vsm *validatorSetManager) PublishSnapshot(slot uint64) (*externalapi.ValidatorSetSnapshot, error) {
	vsm.publishLock.Lock()
	defer vsm.publishLock.Unlock()

	existing, found, err := vsm.snapshotStore.GetSnapshot(slot)
	if err != nil {
		return nil, err
	}
	if found {
		return existing, nil
	}

	eligible := make([]*externalapi.Validator, 0, len(vsm.registry))
	for _, validator := range vsm.registry {
		if vsm.eligibility.IsEligible(validator.ID, slot) {
			eligible = append(eligible, validator)
		}
	}
	if len(eligible) == 0 {
		return nil, errors.Wrapf(ruleerrors.ErrSnapshotUnavailable, "no validator is eligible in slot %d", slot)
	}

	snapshot, err := externalapi.NewValidatorSetSnapshot(slot, eligible)
	if err != nil {
		return nil, err
	}
	err = vsm.snapshotStore.PutSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	log.Debugf("Published the validator set of slot %d: %d validators, total weight %d",
		slot, snapshot.Len(), snapshot.TotalWeight())

	if slot > vsm.params.SnapshotRetention {
		err = vsm.snapshotStore.PruneBefore(slot - vsm.params.SnapshotRetention)
		if err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}
