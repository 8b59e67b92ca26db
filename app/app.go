package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/timecoin/timed/infrastructure/config"
	"github.com/timecoin/timed/infrastructure/db/database"
	"github.com/timecoin/timed/infrastructure/db/database/ldb"
	"github.com/timecoin/timed/infrastructure/os/signal"
	"github.com/timecoin/timed/util/panics"
	"github.com/timecoin/timed/version"
)

const databaseDirName = "db"

type timedApp struct {
	cfg *config.Config
}

// StartApp starts the timed app, and blocks until it finishes running
func StartApp() error {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer log.Backend().Close()
	defer panics.HandlePanic(log, nil)

	app := &timedApp{cfg: cfg}
	return app.main(signal.InterruptListener())
}

func (app *timedApp) main(interrupt <-chan struct{}) error {
	log.Infof("Version %s", version.Version())
	log.Infof("Network %s with %d validators", app.cfg.ActiveNetParams.Name, len(app.cfg.Validators))

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	db, err := openDB(app.cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		err := db.Close()
		if err != nil {
			log.Errorf("Failed to close the database: %s", err)
		}
	}()

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	componentManager, err := NewComponentManager(app.cfg, db)
	if err != nil {
		log.Errorf("Unable to start timed: %+v", err)
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down timed...")

		shutdownDone := make(chan struct{})
		spawn(func() {
			componentManager.Stop()
			shutdownDone <- struct{}{}
		})

		const shutdownTimeout = 2 * 60 * time.Second

		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out %s. Terminating...", shutdownTimeout)
		}
		log.Infof("Timed shutdown complete")
	}()

	componentManager.Start()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

// openDB opens the node database, creating it together with its version
// file on first use.
func openDB(cfg *config.Config) (database.Database, error) {
	dbPath := filepath.Join(cfg.DataDir, databaseDirName)

	versionFileExists, err := checkDatabaseVersion(dbPath)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading database from '%s'", dbPath)
	db, err := ldb.NewLevelDB(dbPath, cfg.DBCacheSizeMiB)
	if err != nil {
		return nil, err
	}

	if !versionFileExists {
		err = createDatabaseVersionFile(dbPath)
		if err != nil {
			closeErr := db.Close()
			if closeErr != nil {
				log.Errorf("Failed to close the database: %s", closeErr)
			}
			return nil, errors.Wrap(err, "could not write the database version file")
		}
	}
	return db, nil
}
