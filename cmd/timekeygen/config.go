package main

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/infrastructure/config"
)

type configFlags struct {
	KeyFile string `long:"keyfile" description:"Path to write the validator key file to"`
	Tier    string `long:"tier" description:"Stake tier of the printed validator entry {free, bronze, silver, gold}" default:"free"`
}

func parseConfig() (*configFlags, externalapi.StakeTier, error) {
	cfg := &configFlags{
		KeyFile: filepath.Join(config.DefaultAppDir, "validator.key"),
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		return nil, 0, err
	}

	for _, tier := range []externalapi.StakeTier{externalapi.StakeTierFree, externalapi.StakeTierBronze,
		externalapi.StakeTierSilver, externalapi.StakeTierGold} {

		if tier.String() == cfg.Tier {
			return cfg, tier, nil
		}
	}
	return nil, 0, errors.Errorf("unknown stake tier %q", cfg.Tier)
}
