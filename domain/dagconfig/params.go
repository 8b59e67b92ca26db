package dagconfig

import (
	"time"

	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/domain/consensus/utils/constants"
)

// UnitsPerTime is the number of base units in one TIME.
const UnitsPerTime = constants.UnitsPerTime

const (
	defaultK                 = 20
	defaultAlpha             = 14
	defaultBeta              = 20
	defaultRoundTimeout      = 2 * time.Second
	defaultRoundInterval     = 50 * time.Millisecond
	defaultCandidateTTL      = 10 * time.Minute
	defaultSlotDuration      = 10 * time.Minute
	defaultCollectionWindow  = 30 * time.Second
	defaultMinimumFee        = 1000
	defaultFeeRateDivisor    = 1000
	defaultSnapshotRetention = 1008
	defaultMaxBlockEntries   = 10_000
	defaultEvidenceMaxAge    = 1008
	blockReward              = 100 * UnitsPerTime
	producerReward           = 30 * UnitsPerTime
	treasuryReward           = 5 * UnitsPerTime
)

// Params defines a timed network by its parameters. Nodes on the same
// network must agree on every field marked consensus-critical; the
// sampling parameters only shape the local node's polling.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// NetworkID is bound into every vote, proof and VRF input so that
	// signatures never replay across networks. Consensus-critical.
	NetworkID externalapi.NetworkID

	// DefaultPort defines the default validator-to-validator port.
	DefaultPort string

	// K is the number of validators sampled per polling round.
	K int

	// Alpha is the number of Valid answers that make a round successful.
	Alpha int

	// Beta is the number of consecutive successful rounds after which a
	// transaction is locally accepted.
	Beta int

	// RoundTimeout bounds the wait for a round's responses.
	RoundTimeout time.Duration

	// RoundInterval is the pause between two rounds of the same
	// transaction.
	RoundInterval time.Duration

	// CandidateTTL is how long a transaction may stay undecided, counted
	// from when it was first seen, before it is evicted.
	CandidateTTL time.Duration

	// ReservationTTL is how long an output reservation is honored before
	// the sweeper releases it.
	ReservationTTL time.Duration

	// MinimumFee is the absolute lower bound of a transaction fee.
	// Consensus-critical.
	MinimumFee uint64

	// FeeRateDivisor sets the proportional fee: a transaction must also
	// pay at least its output total divided by FeeRateDivisor.
	// Consensus-critical.
	FeeRateDivisor uint64

	// SlotDuration is the checkpoint slot length. Consensus-critical.
	SlotDuration time.Duration

	// CollectionWindow is how long after a slot starts candidate blocks
	// are collected before the canonical one is committed.
	CollectionWindow time.Duration

	// SnapshotRetention is the number of slots a validator set snapshot
	// is kept after it was published.
	SnapshotRetention uint64

	// MaxBlockEntries caps the entries of a checkpoint block.
	// Consensus-critical.
	MaxBlockEntries int

	// EvidenceMaxAge is the number of slots equivocation evidence is
	// retained.
	EvidenceMaxAge uint64

	// BlockVersion is the checkpoint block version produced and accepted.
	BlockVersion uint16

	// Reward schedule of every checkpoint block. Consensus-critical.
	BlockReward    uint64
	ProducerReward uint64
	TreasuryReward uint64

	// TreasuryID is the reward ledger account credited with the treasury
	// share.
	TreasuryID externalapi.ValidatorID

	// GenesisOutputs are created as unspent outputs of the network's
	// genesis transaction when a node starts with an empty database.
	GenesisOutputs []*externalapi.DomainTransactionOutput
}

// VotingReward returns the share of the block reward split across the
// snapshot's validators.
func (p *Params) VotingReward() uint64 {
	return p.BlockReward - p.ProducerReward - p.TreasuryReward
}

// SlotAt returns the slot containing the given time.
func (p *Params) SlotAt(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(p.SlotDuration/time.Second)
}

// SlotTime returns the unix time in seconds at which slot starts.
func (p *Params) SlotTime(slot uint64) int64 {
	return int64(slot * uint64(p.SlotDuration/time.Second))
}

// FinalityThreshold returns the weight a finality proof needs given the
// total weight of its slot's snapshot: ceil(2 * total / 3).
func FinalityThreshold(totalWeight uint64) uint64 {
	return (2*totalWeight + 2) / 3
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:              "mainnet",
	NetworkID:         "timed-mainnet",
	DefaultPort:       "24100",
	K:                 defaultK,
	Alpha:             defaultAlpha,
	Beta:              defaultBeta,
	RoundTimeout:      defaultRoundTimeout,
	RoundInterval:     defaultRoundInterval,
	CandidateTTL:      defaultCandidateTTL,
	ReservationTTL:    defaultCandidateTTL,
	MinimumFee:        defaultMinimumFee,
	FeeRateDivisor:    defaultFeeRateDivisor,
	SlotDuration:      defaultSlotDuration,
	CollectionWindow:  defaultCollectionWindow,
	SnapshotRetention: defaultSnapshotRetention,
	MaxBlockEntries:   defaultMaxBlockEntries,
	EvidenceMaxAge:    defaultEvidenceMaxAge,
	BlockVersion:      1,
	BlockReward:       blockReward,
	ProducerReward:    producerReward,
	TreasuryReward:    treasuryReward,
	TreasuryID:        treasuryID,
	GenesisOutputs:    mainnetGenesisOutputs,
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = Params{
	Name:              "testnet",
	NetworkID:         "timed-testnet",
	DefaultPort:       "24200",
	K:                 defaultK,
	Alpha:             defaultAlpha,
	Beta:              defaultBeta,
	RoundTimeout:      defaultRoundTimeout,
	RoundInterval:     defaultRoundInterval,
	CandidateTTL:      defaultCandidateTTL,
	ReservationTTL:    defaultCandidateTTL,
	MinimumFee:        defaultMinimumFee,
	FeeRateDivisor:    defaultFeeRateDivisor,
	SlotDuration:      defaultSlotDuration,
	CollectionWindow:  defaultCollectionWindow,
	SnapshotRetention: defaultSnapshotRetention,
	MaxBlockEntries:   defaultMaxBlockEntries,
	EvidenceMaxAge:    defaultEvidenceMaxAge,
	BlockVersion:      1,
	BlockReward:       blockReward,
	ProducerReward:    producerReward,
	TreasuryReward:    treasuryReward,
	TreasuryID:        treasuryID,
	GenesisOutputs:    testnetGenesisOutputs,
}

// SimnetParams defines the network parameters for the simulation test
// network. Slots are short and rounds are fast so that a handful of local
// nodes finalize and checkpoint within seconds.
var SimnetParams = Params{
	Name:              "simnet",
	NetworkID:         "timed-simnet",
	DefaultPort:       "24300",
	K:                 3,
	Alpha:             2,
	Beta:              3,
	RoundTimeout:      500 * time.Millisecond,
	RoundInterval:     10 * time.Millisecond,
	CandidateTTL:      time.Minute,
	ReservationTTL:    time.Minute,
	MinimumFee:        defaultMinimumFee,
	FeeRateDivisor:    defaultFeeRateDivisor,
	SlotDuration:      10 * time.Second,
	CollectionWindow:  2 * time.Second,
	SnapshotRetention: defaultSnapshotRetention,
	MaxBlockEntries:   defaultMaxBlockEntries,
	EvidenceMaxAge:    defaultEvidenceMaxAge,
	BlockVersion:      1,
	BlockReward:       blockReward,
	ProducerReward:    producerReward,
	TreasuryReward:    treasuryReward,
	TreasuryID:        treasuryID,
	GenesisOutputs:    simnetGenesisOutputs,
}

// DevnetParams defines the network parameters for the development
// network. It is the only network whose consensus parameters may be
// overridden.
var DevnetParams = Params{
	Name:              "devnet",
	NetworkID:         "timed-devnet",
	DefaultPort:       "24400",
	K:                 defaultK,
	Alpha:             defaultAlpha,
	Beta:              defaultBeta,
	RoundTimeout:      defaultRoundTimeout,
	RoundInterval:     defaultRoundInterval,
	CandidateTTL:      defaultCandidateTTL,
	ReservationTTL:    defaultCandidateTTL,
	MinimumFee:        defaultMinimumFee,
	FeeRateDivisor:    defaultFeeRateDivisor,
	SlotDuration:      time.Minute,
	CollectionWindow:  5 * time.Second,
	SnapshotRetention: defaultSnapshotRetention,
	MaxBlockEntries:   defaultMaxBlockEntries,
	EvidenceMaxAge:    defaultEvidenceMaxAge,
	BlockVersion:      1,
	BlockReward:       blockReward,
	ProducerReward:    producerReward,
	TreasuryReward:    treasuryReward,
	TreasuryID:        treasuryID,
	GenesisOutputs:    devnetGenesisOutputs,
}
