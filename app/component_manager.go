package app

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/domain/consensus"
	"github.com/timecoin/timed/infrastructure/config"
	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/metrics"
	"github.com/timecoin/timed/infrastructure/network/p2p"
	"github.com/timecoin/timed/util/panics"
)

// ComponentManager is a wrapper for all the timed services
type ComponentManager struct {
	cfg           *config.Config
	consensus     consensus.Consensus
	netAdapter    *p2p.NetAdapter
	metricsServer *metrics.Server

	started, shutdown int32
}

// Start launches all the timed services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Tracef("Starting timed")

	err := a.netAdapter.Start()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting the net adapter: %+v", err))
	}

	err = a.consensus.Start()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting consensus: %+v", err))
	}

	if a.metricsServer != nil {
		a.metricsServer.Start()
	}
}

// Stop gracefully shuts down all the timed services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Timed is already in the process of shutting down")
		return
	}

	log.Warnf("Timed shutting down")

	if a.metricsServer != nil {
		err := a.metricsServer.Stop()
		if err != nil {
			log.Errorf("Error stopping the metrics server: %+v", err)
		}
	}

	a.consensus.Stop()

	err := a.netAdapter.Stop()
	if err != nil {
		log.Errorf("Error stopping the net adapter: %+v", err)
	}
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db database.Database) (*ComponentManager, error) {
	keys, err := loadValidatorKeys(cfg)
	if err != nil {
		return nil, err
	}

	nodeMetrics, err := metrics.New()
	if err != nil {
		return nil, err
	}
	var metricsServer *metrics.Server
	if cfg.MetricsListen != "" {
		metricsServer, err = metrics.NewServer(cfg.MetricsListen, nodeMetrics)
		if err != nil {
			return nil, err
		}
	}

	peers := make([]*p2p.Peer, len(cfg.PeerAddresses))
	for i, peerAddress := range cfg.PeerAddresses {
		peers[i] = &p2p.Peer{ID: peerAddress.ID, Address: peerAddress.Address}
	}
	netAdapter := p2p.NewNetAdapter(cfg.Listen, peers)

	if keys == nil {
		keys = &config.ValidatorKeys{}
	}
	nodeConsensus, err := consensus.NewFactory().NewConsensus(cfg.ActiveNetParams, db, cfg.Validators,
		keys.SigningKey, keys.VRFKey, netAdapter, nodeMetrics)
	if err != nil {
		return nil, err
	}
	netAdapter.SetMessageHandler(nodeConsensus)

	return &ComponentManager{
		cfg:           cfg,
		consensus:     nodeConsensus,
		netAdapter:    netAdapter,
		metricsServer: metricsServer,
	}, nil
}

// loadValidatorKeys reads the key file. A node without a key file runs as
// a non-voting observer, while a key that is not part of the validator set
// is a configuration error.
func loadValidatorKeys(cfg *config.Config) (*config.ValidatorKeys, error) {
	keys, err := config.LoadKeyFile(cfg.KeyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("No key file at %s: running as an observer", cfg.KeyFile)
			return nil, nil
		}
		return nil, err
	}

	validator, err := keys.Validator(0)
	if err != nil {
		return nil, err
	}
	for _, member := range cfg.Validators {
		if member.ID == validator.ID {
			log.Infof("Running as validator %s with weight %d", member.ID, member.Weight)
			return keys, nil
		}
	}
	return nil, errors.Errorf("the key in %s belongs to %s, which is not in the validator set",
		cfg.KeyFile, validator.ID)
}
