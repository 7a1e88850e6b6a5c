package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lumi-core/internal/api"
	"github.com/nerrad567/lumi-core/internal/audit"
	"github.com/nerrad567/lumi-core/internal/chain"
	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/config"
	"github.com/nerrad567/lumi-core/internal/infrastructure/database"
	"github.com/nerrad567/lumi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/lumi-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
	"github.com/nerrad567/lumi-core/internal/store"

	_ "github.com/nerrad567/lumi-core/migrations" // registers the embedded schema
)

// runServe starts every component and blocks until ctx is cancelled.
// Deferred closes run in reverse order: API, follower, InfluxDB, MQTT,
// database.
func runServe(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting lumid", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	dcfg, err := dispatcherConfig(cfg.Ledger)
	if err != nil {
		return err
	}
	st := store.New(db)
	disp := dispatcher.New(dcfg, st)
	disp.SetLogger(log.Component("dispatcher"))

	snap, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger state: %w", err)
	}
	disp.Restore(snap)
	devices, groups, schedules := disp.Counts()
	log.Info("ledger restored",
		"height", disp.Height(),
		"devices", devices,
		"groups", groups,
		"schedules", schedules,
		"state_root", disp.StateRoot(),
	)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	disp.AddObserver(hub)

	var mqttClient *mqtt.Client
	if cfg.Chain.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		disp.AddObserver(chain.NewStatePublisher(mqttClient, log.Component("state")))
	} else {
		log.Info("chain follower disabled, serving reads only")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		disp.AddObserver(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if mqttClient != nil {
		follower := newFollower(cfg, disp, mqttClient, log)
		if err := follower.Start(gctx); err != nil {
			return fmt.Errorf("starting chain follower: %w", err)
		}
		defer follower.Stop()
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Ledger:  disp,
			Journal: audit.NewSQLiteRepository(db.DB),
			Hub:     hub,
			DB:      db,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("lumid stopped", "height", disp.Height(), "state_root", disp.StateRoot())
	return nil
}

func newFollower(cfg *config.Config, disp *dispatcher.Dispatcher, client *mqtt.Client, log *logging.Logger) *chain.Follower {
	var keeper *chain.Keeper
	if cfg.Chain.Keeper.Enabled {
		keeper = chain.NewKeeper(chain.KeeperOptions{
			Ledger:    disp,
			Publisher: client,
			Identity:  ledger.Identity(cfg.Chain.Keeper.Identity),
			Logger:    log.Component("keeper"),
		})
	}
	return chain.NewFollower(chain.FollowerOptions{
		Ledger: disp,
		MQTT:   client,
		Keeper: keeper,
		QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
		Logger: log.Component("chain"),
	})
}

// openDatabase opens and migrates the ledger database.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// dispatcherConfig builds the ledger configuration. Replicas replaying the
// same chain must agree on every field.
func dispatcherConfig(cfg config.LedgerConfig) (dispatcher.Config, error) {
	trigger, err := schedule.ParseTriggerPolicy(cfg.TriggerPolicy)
	if err != nil {
		return dispatcher.Config{}, fmt.Errorf("ledger config: %w", err)
	}
	group, err := schedule.ParseGroupPolicy(cfg.GroupExecution)
	if err != nil {
		return dispatcher.Config{}, fmt.Errorf("ledger config: %w", err)
	}
	return dispatcher.Config{
		Admin:  ledger.Identity(cfg.Administrator),
		Policy: schedule.Policy{Trigger: trigger, Group: group},
	}, nil
}

// healthCheck verifies the infrastructure connections. mqttClient and
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
