package transactionvalidator

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/consensushashing"
	"github.com/timecoin/timed/domain/consensus/utils/constants"
)

// ValidateTransactionInContext validates the transaction against the
// current output states and returns its fee. Outputs reserved by another
// transaction are acceptable: the transaction then competes for them.
func (v *transactionValidator) ValidateTransactionInContext(tx *externalapi.DomainTransaction) (uint64, error) {
	totalIn, err := v.checkTransactionInputs(tx)
	if err != nil {
		return 0, err
	}

	totalOut, err := v.checkTransactionOutputAmounts(tx, totalIn)
	if err != nil {
		return 0, err
	}

	fee := totalIn - totalOut
	err = v.checkTransactionFee(fee, totalOut)
	if err != nil {
		return 0, err
	}
	return fee, nil
}

func (v *transactionValidator) checkTransactionInputs(tx *externalapi.DomainTransaction) (uint64, error) {
	txID := consensushashing.TransactionID(tx)
	totalIn := uint64(0)
	var missingOutpoints []externalapi.DomainOutpoint
	for _, input := range tx.Inputs {
		state, found, err := v.utxoStore.GetOutputState(input.PreviousOutpoint)
		if err != nil {
			return 0, err
		}
		if !found {
			missingOutpoints = append(missingOutpoints, input.PreviousOutpoint)
			continue
		}

		switch state.Status {
		case externalapi.UTXOStatusFinal, externalapi.UTXOStatusArchived:
			if state.SpenderID != txID {
				return 0, errors.Wrapf(ruleerrors.ErrAlreadySpent, "output %s is %s",
					input.PreviousOutpoint, state)
			}
		}

		totalIn, err = v.checkEntryAmounts(state, totalIn)
		if err != nil {
			return 0, err
		}
	}

	if len(missingOutpoints) > 0 {
		return 0, ruleerrors.NewErrMissingOutputs(missingOutpoints)
	}
	return totalIn, nil
}

func (v *transactionValidator) checkEntryAmounts(state *externalapi.OutputState, totalInBefore uint64) (uint64, error) {
	totalInAfter := totalInBefore + state.Amount
	if totalInAfter < totalInBefore || totalInAfter > constants.MaxAmount {
		return 0, errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all transaction "+
			"inputs is higher than max allowed value of %d", constants.MaxAmount)
	}
	return totalInAfter, nil
}

func (v *transactionValidator) checkTransactionOutputAmounts(tx *externalapi.DomainTransaction, totalIn uint64) (uint64, error) {
	totalOut := uint64(0)
	// It is safe to ignore overflow here because it was already
	// caught by checkTransactionAmountRanges.
	for _, output := range tx.Outputs {
		totalOut += output.Value
	}

	if totalIn < totalOut {
		return 0, errors.Wrapf(ruleerrors.ErrSpendTooHigh, "total value of all transaction inputs for "+
			"the transaction is %d which is less than the amount "+
			"spent of %d", totalIn, totalOut)
	}
	return totalOut, nil
}

func (v *transactionValidator) checkTransactionFee(fee uint64, totalOut uint64) error {
	if fee < v.minimumFee {
		return errors.Wrapf(ruleerrors.ErrFeeTooLow, "transaction fee of %d is below "+
			"the minimum of %d", fee, v.minimumFee)
	}
	if v.feeRateDivisor == 0 {
		return nil
	}
	proportionalFee := totalOut / v.feeRateDivisor
	if fee < proportionalFee {
		return errors.Wrapf(ruleerrors.ErrFeeTooLow, "transaction fee of %d is below "+
			"%d, the 1/%d share of the %d spent", fee, proportionalFee, v.feeRateDivisor, totalOut)
	}
	return nil
}
