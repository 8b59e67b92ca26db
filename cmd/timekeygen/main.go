package main

import (
	"fmt"
	"os"

	"github.com/timecoin/timed/infrastructure/config"
)

func main() {
	cfg, tier, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	keys, err := config.GenerateValidatorKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate validator keys: %+v\n", err)
		os.Exit(1)
	}
	err = config.WriteKeyFile(cfg.KeyFile, keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %+v\n", cfg.KeyFile, err)
		os.Exit(1)
	}

	validator, err := keys.Validator(tier.Weight())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	entry, err := config.MarshalValidatorEntry(validator, tier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote the keys of validator %s to %s\n", validator.ID, cfg.KeyFile)
	fmt.Printf("Add this entry to the validators file of every node:\n%s\n", entry)
}
