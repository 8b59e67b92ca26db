package checkpointproducer

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

const pendingTreeDegree = 32

// OnTransactionFinalized queues a newly final transaction for the next
// checkpoint block.
func (cp *checkpointProducer) OnTransactionFinalized(proof *externalapi.FinalityProof,
	_ []externalapi.DomainTransactionID) {

	cp.addPending(consensushashing.TransactionID(proof.Transaction))
}

func (cp *checkpointProducer) addPending(transactionIDs ...externalapi.DomainTransactionID) {
	cp.pendingLock.Lock()
	defer cp.pendingLock.Unlock()
	for _, transactionID := range transactionIDs {
		cp.pending.ReplaceOrInsert(transactionID)
	}
}

func (cp *checkpointProducer) removePending(transactionIDs ...externalapi.DomainTransactionID) {
	cp.pendingLock.Lock()
	defer cp.pendingLock.Unlock()
	for _, transactionID := range transactionIDs {
		cp.pending.Delete(transactionID)
	}
}

// pendingTransactionIDs returns the final, unarchived transactions in
// ascending ID order.
func (cp *checkpointProducer) pendingTransactionIDs() []externalapi.DomainTransactionID {
	cp.pendingLock.Lock()
	defer cp.pendingLock.Unlock()

	transactionIDs := make([]externalapi.DomainTransactionID, 0, cp.pending.Len())
	cp.pending.Ascend(func(transactionID externalapi.DomainTransactionID) bool {
		transactionIDs = append(transactionIDs, transactionID)
		return true
	})
	return transactionIDs
}
