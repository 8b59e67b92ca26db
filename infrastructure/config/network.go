package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/dagconfig"
)

// NetworkFlags holds the network configuration, that is which network is selected.
type NetworkFlags struct {
	Testnet               bool   `long:"testnet" description:"Use the test network"`
	Simnet                bool   `long:"simnet" description:"Use the simulation test network"`
	Devnet                bool   `long:"devnet" description:"Use the development test network"`
	OverrideDAGParamsFile string `long:"override-dag-params-file" description:"Overrides consensus params (allowed only on devnet)"`

	ActiveNetParams *dagconfig.Params
}

type overrideDAGParamsConfig struct {
	SlotDurationInSeconds     *int64  `json:"slotDurationInSeconds"`
	CollectionWindowInSeconds *int64  `json:"collectionWindowInSeconds"`
	MinimumFee                *uint64 `json:"minimumFee"`
	FeeRateDivisor            *uint64 `json:"feeRateDivisor"`
	SnapshotRetention         *uint64 `json:"snapshotRetention"`
	MaxBlockEntries           *int    `json:"maxBlockEntries"`
	EvidenceMaxAge            *uint64 `json:"evidenceMaxAge"`
	BlockReward               *uint64 `json:"blockReward"`
	ProducerReward            *uint64 `json:"producerReward"`
	TreasuryReward            *uint64 `json:"treasuryReward"`
}

// ResolveNetwork parses the network command line argument and sets ActiveNetParams accordingly.
// It returns error if more than one network was selected, nil otherwise.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser) error {
	numNets := 0
	var params dagconfig.Params
	if networkFlags.Testnet {
		numNets++
		params = dagconfig.TestnetParams
	}
	if networkFlags.Simnet {
		numNets++
		params = dagconfig.SimnetParams
	}
	if networkFlags.Devnet {
		numNets++
		params = dagconfig.DevnetParams
	}
	if numNets > 1 {
		message := "Multiple networks parameters (testnet, simnet, devnet, etc.) cannot be used " +
			"together. Please choose only one network"
		err := errors.Errorf(message)
		if parser != nil {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
		}
		return err
	}
	if numNets == 0 {
		params = dagconfig.MainnetParams
	}

	// Work on a copy so that overrides never leak into the package-level
	// params shared by every node in the process.
	networkFlags.ActiveNetParams = &params

	return networkFlags.overrideDAGParams()
}

// NetParams returns the ActiveNetParams
func (networkFlags *NetworkFlags) NetParams() *dagconfig.Params {
	return networkFlags.ActiveNetParams
}

func (networkFlags *NetworkFlags) overrideDAGParams() error {
	if networkFlags.OverrideDAGParamsFile == "" {
		return nil
	}

	if !networkFlags.Devnet {
		return errors.Errorf("override-dag-params-file is allowed only when using devnet")
	}

	overrideDAGParamsFile, err := os.Open(networkFlags.OverrideDAGParamsFile)
	if err != nil {
		return errors.WithStack(err)
	}
	defer overrideDAGParamsFile.Close()

	decoder := json.NewDecoder(overrideDAGParamsFile)
	decoder.DisallowUnknownFields()
	config := &overrideDAGParamsConfig{}
	err = decoder.Decode(config)
	if err != nil {
		return errors.Wrapf(err, "malformed %s", networkFlags.OverrideDAGParamsFile)
	}

	params := networkFlags.ActiveNetParams
	if config.SlotDurationInSeconds != nil {
		params.SlotDuration = time.Duration(*config.SlotDurationInSeconds) * time.Second
	}
	if config.CollectionWindowInSeconds != nil {
		params.CollectionWindow = time.Duration(*config.CollectionWindowInSeconds) * time.Second
	}
	if config.MinimumFee != nil {
		params.MinimumFee = *config.MinimumFee
	}
	if config.FeeRateDivisor != nil {
		params.FeeRateDivisor = *config.FeeRateDivisor
	}
	if config.SnapshotRetention != nil {
		params.SnapshotRetention = *config.SnapshotRetention
	}
	if config.MaxBlockEntries != nil {
		params.MaxBlockEntries = *config.MaxBlockEntries
	}
	if config.EvidenceMaxAge != nil {
		params.EvidenceMaxAge = *config.EvidenceMaxAge
	}
	if config.BlockReward != nil {
		params.BlockReward = *config.BlockReward
	}
	if config.ProducerReward != nil {
		params.ProducerReward = *config.ProducerReward
	}
	if config.TreasuryReward != nil {
		params.TreasuryReward = *config.TreasuryReward
	}

	return validateParams(params)
}

func validateParams(params *dagconfig.Params) error {
	if params.SlotDuration < time.Second || params.SlotDuration%time.Second != 0 {
		return errors.Errorf("slot duration %s must be a positive whole number of seconds", params.SlotDuration)
	}
	if params.CollectionWindow <= 0 || params.CollectionWindow >= params.SlotDuration {
		return errors.Errorf("collection window %s must be positive and shorter than the slot duration %s",
			params.CollectionWindow, params.SlotDuration)
	}
	if params.FeeRateDivisor == 0 {
		return errors.Errorf("fee rate divisor cannot be zero")
	}
	if params.MaxBlockEntries <= 0 {
		return errors.Errorf("max block entries must be positive")
	}
	if params.ProducerReward+params.TreasuryReward > params.BlockReward {
		return errors.Errorf("producer reward %d and treasury reward %d exceed the block reward %d",
			params.ProducerReward, params.TreasuryReward, params.BlockReward)
	}
	return nil
}
