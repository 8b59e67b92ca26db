package constants

const (
	// MaxTransactionVersion is the highest transaction version this node
	// is able to validate.
	MaxTransactionVersion = 1

	// UnitsPerTime is the number of base units in one TIME.
	UnitsPerTime = 100_000_000

	// MaxAmount is the maximum transaction amount allowed in base units.
	MaxAmount = 1_000_000_000 * UnitsPerTime

	// DustThreshold is the smallest value an output may carry.
	DustThreshold = 546

	// MaxTransactionSize is the maximum serialized size of a transaction.
	MaxTransactionSize = 100_000

	// MaxPayloadSize is the maximum size of a transaction payload.
	MaxPayloadSize = 1024
)
