package checkpointproducer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
)

const maxTickInterval = time.Second

func (cp *checkpointProducer) tickInterval() time.Duration {
	interval := cp.params.CollectionWindow / 4
	if interval <= 0 || interval > maxTickInterval {
		return maxTickInterval
	}
	return interval
}

// Start starts the slot schedule.
func (cp *checkpointProducer) Start() error {
	cp.wg.Add(1)
	spawn(func() {
		defer cp.wg.Done()
		cp.scheduleLoop()
	})
	return nil
}

// Stop stops the slot schedule and waits for it to exit.
func (cp *checkpointProducer) Stop() {
	cp.stopOnce.Do(func() {
		close(cp.quit)
	})
	cp.wg.Wait()
}

func (cp *checkpointProducer) scheduleLoop() {
	ticker := time.NewTicker(cp.tickInterval())
	defer ticker.Stop()

	for {
		cp.tick()
		select {
		case <-cp.quit:
			return
		case <-ticker.C:
		}
	}
}

// tick commits every slot whose collection window ended, and then
// starts the current slot if it was not started yet. Committing first
// lets the new candidate build on the latest tip.
func (cp *checkpointProducer) tick() {
	now := cp.clock.Now()

	cp.lock.Lock()
	due := cp.dueSlots(now.Unix())
	cp.lock.Unlock()
	for _, dueSlot := range due {
		_, err := cp.CommitSlot(dueSlot)
		if err != nil {
			if errors.Is(err, ruleerrors.ErrInclusionPaused) {
				log.Debugf("Slot %d stays open: %s", dueSlot, err)
				continue
			}
			log.Errorf("Error committing slot %d: %+v", dueSlot, err)
		}
	}

	slot := cp.params.SlotAt(now)
	if cp.startSlot(slot) {
		cp.produce(slot)
	}
}

// startSlot opens slot for candidates. It returns false if slot was
// already started or closed.
func (cp *checkpointProducer) startSlot(slot uint64) bool {
	cp.lock.Lock()
	defer cp.lock.Unlock()

	if slot <= cp.lastStartedSlot || cp.isCommitted(slot) {
		return false
	}
	cp.lastStartedSlot = slot
	cp.slotRound(slot)
	log.Debugf("Slot %d started", slot)
	return true
}

func (cp *checkpointProducer) produce(slot uint64) {
	if cp.signingKey == nil || cp.vrfKey == nil {
		return
	}
	block, err := cp.ProduceCandidate(slot)
	if err != nil {
		switch {
		case errors.Is(err, ruleerrors.ErrProducerNotInSnapshot):
			log.Debugf("Not producing for slot %d: %s", slot, err)
		case errors.Is(err, ruleerrors.ErrInclusionPaused):
			log.Warnf("Not producing for slot %d: %s", slot, err)
		default:
			log.Errorf("Error producing a candidate for slot %d: %+v", slot, err)
		}
		return
	}
	cp.messageChannel.BroadcastBlock(block)
}
