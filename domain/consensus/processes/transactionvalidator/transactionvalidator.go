package transactionvalidator

import (
	"github.com/timecoin/timed/domain/consensus/model"
	"github.com/timecoin/timed/domain/dagconfig"
)

// transactionValidator exposes a set of validation classes, after which
// it's possible to determine whether either a transaction is valid
type transactionValidator struct {
	minimumFee     uint64
	feeRateDivisor uint64
	utxoStore      model.UTXOStore
}

// New instantiates a new TransactionValidator
func New(params *dagconfig.Params, utxoStore model.UTXOStore) model.TransactionValidator {
	return &transactionValidator{
		minimumFee:     params.MinimumFee,
		feeRateDivisor: params.FeeRateDivisor,
		utxoStore:      utxoStore,
	}
}
