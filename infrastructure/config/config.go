// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus/model/externalapi"
	"github.com/timecoin/timed/infrastructure/logger"
	"github.com/timecoin/timed/version"
)

const (
	defaultConfigFilename = "timed.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "timed.log"
	defaultErrLogFilename = "timed_err.log"
	defaultKeyFilename    = "validator.key"
	defaultDBCacheSizeMiB = 64
)

var (
	// DefaultAppDir is the default home directory for timed.
	DefaultAppDir = appDataDir("timed")

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultKeyFile    = filepath.Join(DefaultAppDir, defaultKeyFilename)
)

// Flags defines the configuration options for timed.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir         string        `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir         string        `long:"logdir" description:"Directory to log output."`
	DebugLevel     string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Listen         string        `long:"listen" description:"Interface/port to listen for validator connections (default all interfaces, port: 24100, testnet: 24200)"`
	Peers          []string      `long:"peer" description:"Validator to connect to, as <validator id>@<host>:<port>"`
	KeyFile        string        `long:"keyfile" description:"Path to the validator key file created by timekeygen"`
	ValidatorsFile string        `long:"validatorsfile" description:"Path to the JSON file describing the static validator set"`
	MetricsListen  string        `long:"metricslisten" description:"Interface/port to serve prometheus metrics on -- Empty disables the metrics server"`
	DBCacheSizeMiB int           `long:"dbcache" description:"Size of the database block cache in MiB"`
	K              int           `long:"k" description:"Number of validators sampled per polling round (default: network value)"`
	Alpha          int           `long:"alpha" description:"Valid answers required for a successful round (default: network value)"`
	Beta           int           `long:"beta" description:"Consecutive successful rounds required for local acceptance (default: network value)"`
	RoundTimeout   time.Duration `long:"roundtimeout" description:"Time to wait for the responses of a polling round (default: network value)"`
	CandidateTTL   time.Duration `long:"candidatettl" description:"Time an undecided transaction is kept before it is evicted (default: network value)"`
	NetworkFlags
}

// PeerAddress is a validator peer together with its dial address.
type PeerAddress struct {
	ID      externalapi.ValidatorID
	Address string
}

// Config defines the configuration options for timed.
type Config struct {
	*Flags
	DataDir       string
	PeerAddresses []*PeerAddress
	Validators    []*externalapi.Validator
}

// LoadConfig parses the command line and the configuration file, and
// initializes logging accordingly.
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return nil, err
	}

	logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename),
		filepath.Join(cfg.LogDir, defaultErrLogFilename))
	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// Command line options always take precedence.
func loadConfig(args []string) (*Config, error) {
	cfgFlags := Flags{
		ConfigFile:     defaultConfigFile,
		AppDir:         DefaultAppDir,
		DebugLevel:     defaultLogLevel,
		KeyFile:        defaultKeyFile,
		DBCacheSizeMiB: defaultDBCacheSizeMiB,
	}

	preCfg := cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	if preCfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	parser := flags.NewParser(&cfgFlags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, errors.WithStack(err)
		}
	}

	_, err = parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg := &Config{Flags: &cfgFlags}
	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	err = cfg.validate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	funcName := "loadConfig"
	params := cfg.ActiveNetParams

	cfg.AppDir = cleanAndExpandPath(cfg.AppDir)
	cfg.DataDir = filepath.Join(cfg.AppDir, params.Name, defaultDataDirname)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDir, params.Name, defaultLogDirname)
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.KeyFile = cleanAndExpandPath(cfg.KeyFile)

	if cfg.Listen == "" {
		cfg.Listen = net.JoinHostPort("", params.DefaultPort)
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return errors.Errorf("%s: invalid listen address %s: %s", funcName, cfg.Listen, err)
	}

	if cfg.DBCacheSizeMiB <= 0 {
		return errors.Errorf("%s: dbcache must be positive", funcName)
	}

	if cfg.K != 0 {
		params.K = cfg.K
	}
	if cfg.Alpha != 0 {
		params.Alpha = cfg.Alpha
	}
	if cfg.Beta != 0 {
		params.Beta = cfg.Beta
	}
	if cfg.RoundTimeout != 0 {
		params.RoundTimeout = cfg.RoundTimeout
	}
	if cfg.CandidateTTL != 0 {
		params.CandidateTTL = cfg.CandidateTTL
		params.ReservationTTL = cfg.CandidateTTL
	}
	if params.K <= 0 || params.Alpha <= 0 || params.Beta <= 0 {
		return errors.Errorf("%s: k, alpha and beta must be positive", funcName)
	}
	if params.Alpha > params.K {
		return errors.Errorf("%s: alpha %d cannot exceed k %d", funcName, params.Alpha, params.K)
	}
	if params.RoundTimeout <= 0 || params.CandidateTTL <= 0 {
		return errors.Errorf("%s: roundtimeout and candidatettl must be positive", funcName)
	}

	peerAddresses, err := parsePeers(cfg.Peers, params.DefaultPort)
	if err != nil {
		return errors.Wrapf(err, "%s", funcName)
	}
	cfg.PeerAddresses = peerAddresses

	if cfg.ValidatorsFile == "" {
		return errors.Errorf("%s: validatorsfile is required", funcName)
	}
	cfg.ValidatorsFile = cleanAndExpandPath(cfg.ValidatorsFile)
	validators, err := LoadValidatorsFile(cfg.ValidatorsFile)
	if err != nil {
		return errors.Wrapf(err, "%s", funcName)
	}
	cfg.Validators = validators

	return nil
}

// parsePeers parses <validator id>@<host>[:<port>] peer specifications.
func parsePeers(peers []string, defaultPort string) ([]*PeerAddress, error) {
	peerAddresses := make([]*PeerAddress, 0, len(peers))
	seen := make(map[externalapi.ValidatorID]struct{}, len(peers))
	for _, peer := range peers {
		parts := strings.SplitN(peer, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("peer %s is not of the form <validator id>@<host>:<port>", peer)
		}
		id, err := externalapi.ValidatorIDFromString(parts[0])
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			return nil, errors.Errorf("peer %s is specified more than once", id)
		}
		seen[id] = struct{}{}

		address := parts[1]
		if _, _, err := net.SplitHostPort(address); err != nil {
			address = net.JoinHostPort(address, defaultPort)
		}
		peerAddresses = append(peerAddresses, &PeerAddress{ID: id, Address: address})
	}
	return peerAddresses, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "."+appName)
}
