package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
)

// ErrorClass groups rule errors by how the node reacts to them.
type ErrorClass uint8

const (
	// ClassInvalid is permanent: the object is malformed, badly signed or
	// double-spends final state. It is never retried.
	ClassInvalid ErrorClass = iota + 1

	// ClassTimeout is transient: a voting round collected insufficient
	// responses and is simply retried.
	ClassTimeout

	// ClassConflict means the transaction lost a preference race or an
	// output is held by another candidate.
	ClassConflict

	// ClassSafetyViolation means two valid proofs exist for conflicting
	// spends. It pauses block inclusion until an operator acknowledges it.
	ClassSafetyViolation

	// ClassPartitionStale means the object references a validator set
	// snapshot this node does not hold.
	ClassPartitionStale
)

var classStrings = map[ErrorClass]string{
	ClassInvalid:         "Invalid",
	ClassTimeout:         "Timeout",
	ClassConflict:        "Conflict",
	ClassSafetyViolation: "SafetyViolation",
	ClassPartitionStale:  "PartitionStale",
}

func (c ErrorClass) String() string {
	if s, ok := classStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorClass(%d)", uint8(c))
}

// These constants are used to identify a specific RuleError.
var (
	// ErrNoTxInputs indicates a transaction does not have any inputs.
	ErrNoTxInputs = newRuleError("ErrNoTxInputs", ClassInvalid)

	// ErrNoTxOutputs indicates a transaction does not have any outputs.
	ErrNoTxOutputs = newRuleError("ErrNoTxOutputs", ClassInvalid)

	// ErrBadTxOutValue indicates an output value is zero or the output
	// values overflow.
	ErrBadTxOutValue = newRuleError("ErrBadTxOutValue", ClassInvalid)

	// ErrDuplicateTxInputs indicates a transaction references the same
	// input more than once.
	ErrDuplicateTxInputs = newRuleError("ErrDuplicateTxInputs", ClassInvalid)

	// ErrSpendTooHigh indicates a transaction spends more than its inputs.
	ErrSpendTooHigh = newRuleError("ErrSpendTooHigh", ClassInvalid)

	// ErrFeeTooLow indicates the fee is below the network minimum.
	ErrFeeTooLow = newRuleError("ErrFeeTooLow", ClassInvalid)

	// ErrTransactionVersionIsUnknown indicates that the transaction version is unknown.
	ErrTransactionVersionIsUnknown = newRuleError("ErrTransactionVersionIsUnknown", ClassInvalid)

	// ErrTransactionTooLarge indicates a transaction or its payload exceeds
	// the size limits.
	ErrTransactionTooLarge = newRuleError("ErrTransactionTooLarge", ClassInvalid)

	// ErrMissingOutput indicates an input references an output this node
	// does not know of.
	ErrMissingOutput = newRuleError("ErrMissingOutput", ClassInvalid)

	// ErrAlreadySpent indicates an output is already Final or Archived for
	// another transaction.
	ErrAlreadySpent = newRuleError("ErrAlreadySpent", ClassInvalid)

	// ErrAlreadyReserved indicates another transaction holds a non-final
	// reservation on the output.
	ErrAlreadyReserved = newRuleError("ErrAlreadyReserved", ClassConflict)

	// ErrNotFinal indicates an archive was attempted on an output that is
	// not Final for the archiving transaction.
	ErrNotFinal = newRuleError("ErrNotFinal", ClassInvalid)

	// ErrLostPreference indicates a transaction was rejected because a
	// conflicting candidate was accepted or finalized.
	ErrLostPreference = newRuleError("ErrLostPreference", ClassConflict)

	// ErrCandidateExpired indicates a transaction was evicted before
	// reaching finality.
	ErrCandidateExpired = newRuleError("ErrCandidateExpired", ClassTimeout)

	// ErrRoundTimedOut indicates a voting round collected fewer than the
	// quorum of valid votes.
	ErrRoundTimedOut = newRuleError("ErrRoundTimedOut", ClassTimeout)

	// ErrWrongNetwork indicates a vote, proof or block of another network.
	ErrWrongNetwork = newRuleError("ErrWrongNetwork", ClassInvalid)

	// ErrUnknownTransaction indicates a vote for a transaction this node
	// has not seen.
	ErrUnknownTransaction = newRuleError("ErrUnknownTransaction", ClassInvalid)

	// ErrCommitmentMismatch indicates a vote commits to other transaction
	// bytes than the ones it names.
	ErrCommitmentMismatch = newRuleError("ErrCommitmentMismatch", ClassInvalid)

	// ErrBadVoteSignature indicates a vote signature does not verify.
	ErrBadVoteSignature = newRuleError("ErrBadVoteSignature", ClassInvalid)

	// ErrVoterNotInSnapshot indicates the voter is not a member of the
	// snapshot of the vote's slot, or its weight differs.
	ErrVoterNotInSnapshot = newRuleError("ErrVoterNotInSnapshot", ClassInvalid)

	// ErrDuplicateVote indicates a vote from a voter already counted.
	ErrDuplicateVote = newRuleError("ErrDuplicateVote", ClassInvalid)

	// ErrInconsistentProof indicates proof votes disagree on network, txid,
	// commitment or slot.
	ErrInconsistentProof = newRuleError("ErrInconsistentProof", ClassInvalid)

	// ErrDuplicateVoter indicates a proof counts the same voter twice.
	ErrDuplicateVoter = newRuleError("ErrDuplicateVoter", ClassInvalid)

	// ErrInsufficientWeight indicates a proof below the finality threshold.
	ErrInsufficientWeight = newRuleError("ErrInsufficientWeight", ClassInvalid)

	// ErrSnapshotUnavailable indicates the snapshot for a slot is not held
	// locally, either not yet published or already pruned.
	ErrSnapshotUnavailable = newRuleError("ErrSnapshotUnavailable", ClassPartitionStale)

	// ErrSnapshotAlreadyPublished indicates an attempt to change a
	// published snapshot.
	ErrSnapshotAlreadyPublished = newRuleError("ErrSnapshotAlreadyPublished", ClassInvalid)

	// ErrConflictingProofs indicates two valid proofs for conflicting
	// transactions were observed.
	ErrConflictingProofs = newRuleError("ErrConflictingProofs", ClassSafetyViolation)

	// ErrInclusionPaused indicates block inclusion is paused pending an
	// operator review of a safety violation.
	ErrInclusionPaused = newRuleError("ErrInclusionPaused", ClassSafetyViolation)

	// ErrDuplicateBlock indicates a block with the same hash was already accepted.
	ErrDuplicateBlock = newRuleError("ErrDuplicateBlock", ClassInvalid)

	// ErrBlockVersionIsUnknown indicates that the block version is unknown.
	ErrBlockVersionIsUnknown = newRuleError("ErrBlockVersionIsUnknown", ClassInvalid)

	// ErrUnexpectedHeight indicates a block height other than tip + 1.
	ErrUnexpectedHeight = newRuleError("ErrUnexpectedHeight", ClassInvalid)

	// ErrUnexpectedPrevHash indicates a block that does not extend the tip.
	ErrUnexpectedPrevHash = newRuleError("ErrUnexpectedPrevHash", ClassInvalid)

	// ErrUnexpectedSlot indicates a block slot not after the tip's slot or
	// a slot time that does not match the slot.
	ErrUnexpectedSlot = newRuleError("ErrUnexpectedSlot", ClassInvalid)

	// ErrProducerNotInSnapshot indicates the producer was not eligible.
	ErrProducerNotInSnapshot = newRuleError("ErrProducerNotInSnapshot", ClassInvalid)

	// ErrBadVRFProof indicates the VRF proof or output does not verify.
	ErrBadVRFProof = newRuleError("ErrBadVRFProof", ClassInvalid)

	// ErrBadBlockSignature indicates the producer signature does not verify.
	ErrBadBlockSignature = newRuleError("ErrBadBlockSignature", ClassInvalid)

	// ErrEntriesNotSorted indicates entries not strictly sorted by txid.
	ErrEntriesNotSorted = newRuleError("ErrEntriesNotSorted", ClassInvalid)

	// ErrTooManyEntries indicates more entries than a block may carry.
	ErrTooManyEntries = newRuleError("ErrTooManyEntries", ClassInvalid)

	// ErrMissingProof indicates an entry whose proof is neither inline nor
	// fetchable.
	ErrMissingProof = newRuleError("ErrMissingProof", ClassInvalid)

	// ErrBadProofHash indicates an entry whose proof hash differs from the
	// hash of the proof it references.
	ErrBadProofHash = newRuleError("ErrBadProofHash", ClassInvalid)

	// ErrDoubleSpendInSameBlock indicates two entries spending one output.
	ErrDoubleSpendInSameBlock = newRuleError("ErrDoubleSpendInSameBlock", ClassInvalid)

	// ErrAlreadyArchived indicates an entry that an earlier block archived.
	ErrAlreadyArchived = newRuleError("ErrAlreadyArchived", ClassInvalid)

	// ErrBadMerkleRoot indicates the entries root does not match.
	ErrBadMerkleRoot = newRuleError("ErrBadMerkleRoot", ClassInvalid)

	// ErrBadUTXOCommitment indicates the UTXO commitment does not match.
	ErrBadUTXOCommitment = newRuleError("ErrBadUTXOCommitment", ClassInvalid)

	// ErrBadRewards indicates rewards that differ from the distribution rule.
	ErrBadRewards = newRuleError("ErrBadRewards", ClassInvalid)
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a transaction, vote, proof or block failed due to one of
// the validation rules. The caller can use errors.As or ClassOf to inspect it.
type RuleError struct {
	message string
	class   ErrorClass
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

// Class returns the class of the rule error.
func (e RuleError) Class() ErrorClass {
	return e.class
}

func newRuleError(message string, class ErrorClass) RuleError {
	return RuleError{message: message, class: class, inner: nil}
}

// ClassOf returns the class of the first RuleError in err's chain, and
// false if err is not a rule error.
func ClassOf(err error) (ErrorClass, bool) {
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return 0, false
	}
	return ruleErr.class, true
}

// IsClass returns whether err is a rule error of the given class.
func IsClass(err error, class ErrorClass) bool {
	errClass, ok := ClassOf(err)
	return ok && errClass == class
}

// ErrMissingOutputs lists every outpoint a transaction references that is
// unknown to this node.
type ErrMissingOutputs struct {
	MissingOutpoints []externalapi.DomainOutpoint
}

func (e ErrMissingOutputs) Error() string {
	return fmt.Sprintf("missing the following outpoints: %v", e.MissingOutpoints)
}

// NewErrMissingOutputs creates a new ErrMissingOutputs error wrapped in a RuleError
func NewErrMissingOutputs(missingOutpoints []externalapi.DomainOutpoint) error {
	return errors.WithStack(RuleError{
		message: "ErrMissingOutputs",
		class:   ClassInvalid,
		inner:   ErrMissingOutputs{missingOutpoints},
	})
}

// ErrSafetyViolation describes two conflicting transactions that both
// carry proofs crossing the finality threshold.
type ErrSafetyViolation struct {
	TransactionIDs []externalapi.DomainTransactionID
	Outpoint       externalapi.DomainOutpoint
}

func (e ErrSafetyViolation) Error() string {
	return fmt.Sprintf("conflicting finality proofs on %s for %v", e.Outpoint, e.TransactionIDs)
}

// NewErrSafetyViolation creates a new ErrSafetyViolation error wrapped in a RuleError
func NewErrSafetyViolation(outpoint externalapi.DomainOutpoint, transactionIDs []externalapi.DomainTransactionID) error {
	return errors.WithStack(RuleError{
		message: "ErrSafetyViolation",
		class:   ClassSafetyViolation,
		inner:   ErrSafetyViolation{TransactionIDs: transactionIDs, Outpoint: outpoint},
	})
}
