package utxocoordinator

import (
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
)

func transactionOutpoints(transactionID externalapi.DomainTransactionID,
	transaction *externalapi.DomainTransaction) []externalapi.DomainOutpoint {

	outpoints := make([]externalapi.DomainOutpoint, len(transaction.Outputs))
	for i := range transaction.Outputs {
		outpoints[i] = externalapi.DomainOutpoint{TransactionID: transactionID, Index: uint32(i)}
	}
	return outpoints
}

// FinalizeTransaction finalizes every input of transaction and creates its
// outputs as Unspent, in a single write. Either every input is finalizable
// by the transaction or nothing is written.
func (c *utxoCoordinator) FinalizeTransaction(
	transaction *externalapi.DomainTransaction) ([]externalapi.DomainTransactionID, error) {

	transactionID := consensushashing.TransactionID(transaction)
	inputs := transaction.Outpoints()
	outputs := transactionOutpoints(transactionID, transaction)
	unlock := c.lockShards(append(append([]externalapi.DomainOutpoint{}, inputs...), outputs...))
	defer unlock()

	updates := make(map[externalapi.DomainOutpoint]*externalapi.OutputState, len(inputs)+len(outputs))
	for _, outpoint := range inputs {
		state, err := c.getState(outpoint)
		if err != nil {
			return nil, err
		}
		err = checkFinalizable(outpoint, state, transactionID)
		if err != nil {
			return nil, err
		}
		if state.Status == externalapi.UTXOStatusUnspent || state.Status == externalapi.UTXOStatusReserved {
			updates[outpoint] = finalState(state, transactionID)
		}
	}
	err := c.addMissingOutputs(transaction, outputs, updates)
	if err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		err = c.utxoStore.PutOutputStates(updates)
		if err != nil {
			return nil, err
		}
	}

	var rejected []externalapi.DomainTransactionID
	for _, outpoint := range inputs {
		c.untrackReservation(outpoint)
		rejected = append(rejected, c.shardOf(outpoint).takeLosers(outpoint, transactionID)...)
	}
	rejected = dedupTransactionIDs(rejected)
	log.Debugf("Finalized %s, rejecting %d conflicting transactions", transactionID, len(rejected))
	return rejected, nil
}

func (c *utxoCoordinator) addMissingOutputs(transaction *externalapi.DomainTransaction,
	outpoints []externalapi.DomainOutpoint, updates map[externalapi.DomainOutpoint]*externalapi.OutputState) error {

	for i, outpoint := range outpoints {
		_, found, err := c.utxoStore.GetOutputState(outpoint)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		output := transaction.Outputs[i]
		updates[outpoint] = &externalapi.OutputState{
			Amount:          output.Value,
			ScriptPublicKey: append([]byte(nil), output.ScriptPublicKey...),
			Status:          externalapi.UTXOStatusUnspent,
		}
	}
	return nil
}

// ArchiveTransaction archives every input of a finalized transaction at
// the given checkpoint height, in a single write.
func (c *utxoCoordinator) ArchiveTransaction(transaction *externalapi.DomainTransaction, height uint64) error {
	transactionID := consensushashing.TransactionID(transaction)
	inputs := transaction.Outpoints()
	unlock := c.lockShards(inputs)
	defer unlock()

	updates := make(map[externalapi.DomainOutpoint]*externalapi.OutputState, len(inputs))
	for _, outpoint := range inputs {
		state, err := c.getState(outpoint)
		if err != nil {
			return err
		}
		archived, changed, err := archivedState(outpoint, state, transactionID, height)
		if err != nil {
			return err
		}
		if changed {
			updates[outpoint] = archived
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return c.utxoStore.PutOutputStates(updates)
}

// AddGenesisOutputs creates the outputs of an input-less genesis
// transaction that do not exist yet.
func (c *utxoCoordinator) AddGenesisOutputs(transaction *externalapi.DomainTransaction) error {
	transactionID := consensushashing.TransactionID(transaction)
	outputs := transactionOutpoints(transactionID, transaction)
	unlock := c.lockShards(outputs)
	defer unlock()

	updates := make(map[externalapi.DomainOutpoint]*externalapi.OutputState, len(outputs))
	err := c.addMissingOutputs(transaction, outputs, updates)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	log.Infof("Adding %d genesis outputs of %s", len(updates), transactionID)
	return c.utxoStore.PutOutputStates(updates)
}
