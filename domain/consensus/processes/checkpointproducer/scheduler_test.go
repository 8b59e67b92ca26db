package checkpointproducer

import (
	"testing"
	"time"

	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"go.uber.org/goleak"
)

func waitFor(t *testing.T, description string, condition func() bool) {
	deadline := time.Now().Add(10 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduleProducesAndCommits(t *testing.T) {
	tn := newTestNetwork(t, 40, 30, 20, 10)
	node := tn.newNode(t, tn.validators[0])
	tx := tn.spend("a", 0)
	tn.finalize(t, node, tx)

	ignore := goleak.IgnoreCurrent()
	err := node.producer.Start()
	if err != nil {
		t.Fatalf("Start: %+v", err)
	}

	waitFor(t, "the slot's candidate", func() bool { return len(tn.channel.broadcastBlocks()) == 1 })
	if node.producer.SlotState(testSlot) != model.SlotStateSorting {
		t.Fatalf("expected Sorting before the collection window ends, got %s", node.producer.SlotState(testSlot))
	}

	tn.clock.Advance(tn.params.CollectionWindow)
	waitFor(t, "the slot's commit", func() bool {
		return node.producer.SlotState(testSlot) == model.SlotStateCommitted
	})
	node.producer.Stop()
	goleak.VerifyNone(t, ignore)

	tip, found, err := node.producer.Tip()
	if err != nil || !found {
		t.Fatalf("Tip: %t, %+v", found, err)
	}
	broadcast := tn.channel.broadcastBlocks()[0]
	if consensushashing.BlockHash(tip.Header) != consensushashing.BlockHash(broadcast.Header) {
		t.Fatalf("committed block differs from the broadcast candidate")
	}
	if len(tip.Entries) != 1 || tip.Entries[0].TransactionID != consensushashing.TransactionID(tx) {
		t.Fatalf("unexpected entries of the committed block")
	}
}
