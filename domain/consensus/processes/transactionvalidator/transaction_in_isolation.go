package transactionvalidator

import (
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/ruleerrors"
	"github.com/timecoin/timed/domain/consensus/utils/constants"
	"github.com/timecoin/timed/domain/consensus/utils/estimatedsize"
)

// ValidateTransactionInIsolation validates the parts of the transaction
// that do not depend on any output state.
func (v *transactionValidator) ValidateTransactionInIsolation(tx *externalapi.DomainTransaction) error {
	err := v.checkTransactionVersion(tx)
	if err != nil {
		return err
	}
	err = v.checkTransactionInputCount(tx)
	if err != nil {
		return err
	}
	err = v.checkTransactionOutputCount(tx)
	if err != nil {
		return err
	}
	err = v.checkTransactionAmountRanges(tx)
	if err != nil {
		return err
	}
	err = v.checkDuplicateTransactionInputs(tx)
	if err != nil {
		return err
	}
	return v.checkTransactionSize(tx)
}

func (v *transactionValidator) checkTransactionVersion(tx *externalapi.DomainTransaction) error {
	if tx.Version > constants.MaxTransactionVersion {
		return errors.Wrapf(ruleerrors.ErrTransactionVersionIsUnknown,
			"validation failed: unknown transaction version %d", tx.Version)
	}
	return nil
}

func (v *transactionValidator) checkTransactionInputCount(tx *externalapi.DomainTransaction) error {
	if len(tx.Inputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxInputs, "transaction has no inputs")
	}
	return nil
}

func (v *transactionValidator) checkTransactionOutputCount(tx *externalapi.DomainTransaction) error {
	if len(tx.Outputs) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTxOutputs, "transaction has no outputs")
	}
	return nil
}

func (v *transactionValidator) checkTransactionAmountRanges(tx *externalapi.DomainTransaction) error {
	// Ensure the transaction amounts are in range. Each transaction
	// output must carry at least the dust threshold and not more than
	// the max allowed per transaction.
	var totalAmount uint64
	for _, output := range tx.Outputs {
		amount := output.Value
		if amount == 0 {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "zero value output")
		}
		if amount < constants.DustThreshold {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output value of %d is "+
				"below the dust threshold of %d", amount, constants.DustThreshold)
		}
		if amount > constants.MaxAmount {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "transaction output value of %d is "+
				"higher than max allowed value of %d", amount, constants.MaxAmount)
		}

		// Binary arithmetic guarantees that any overflow is detected and reported.
		newTotalAmount := totalAmount + amount
		if newTotalAmount < totalAmount {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all transaction "+
				"outputs exceeds max allowed value of %d", constants.MaxAmount)
		}
		totalAmount = newTotalAmount
		if totalAmount > constants.MaxAmount {
			return errors.Wrapf(ruleerrors.ErrBadTxOutValue, "total value of all "+
				"transaction outputs is %d which is higher than max "+
				"allowed value of %d", totalAmount, constants.MaxAmount)
		}
	}
	return nil
}

func (v *transactionValidator) checkDuplicateTransactionInputs(tx *externalapi.DomainTransaction) error {
	existingTxOut := make(map[externalapi.DomainOutpoint]struct{}, len(tx.Inputs))
	for _, txIn := range tx.Inputs {
		if _, exists := existingTxOut[txIn.PreviousOutpoint]; exists {
			return errors.Wrapf(ruleerrors.ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs of %s", txIn.PreviousOutpoint)
		}
		existingTxOut[txIn.PreviousOutpoint] = struct{}{}
	}
	return nil
}

func (v *transactionValidator) checkTransactionSize(tx *externalapi.DomainTransaction) error {
	if len(tx.Payload) > constants.MaxPayloadSize {
		return errors.Wrapf(ruleerrors.ErrTransactionTooLarge, "transaction payload of %d bytes "+
			"exceeds the limit of %d", len(tx.Payload), constants.MaxPayloadSize)
	}
	size := estimatedsize.TransactionEstimatedSerializedSize(tx)
	if size > constants.MaxTransactionSize {
		return errors.Wrapf(ruleerrors.ErrTransactionTooLarge, "transaction of %d bytes "+
			"exceeds the limit of %d", size, constants.MaxTransactionSize)
	}
	return nil
}
