package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/agent"
	"github.com/nerrad567/wlddc/internal/api"
	"github.com/nerrad567/wlddc/internal/audit"
	"github.com/nerrad567/wlddc/internal/backends"
	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/influxdb"
	"github.com/nerrad567/wlddc/internal/infrastructure/logging"
	"github.com/nerrad567/wlddc/internal/logind"
	"github.com/nerrad567/wlddc/internal/mdns"
	"github.com/nerrad567/wlddc/internal/metrics"
	"github.com/nerrad567/wlddc/internal/process"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the MQTT agent",
		Long: `Run the long-lived agent: poll the monitors, publish Home Assistant
discovery and state over MQTT and execute power and brightness commands.

The agent keeps running while the broker is unreachable and reconnects with
exponential backoff. SIGINT or SIGTERM drains queued commands and publishes
the agent as offline before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, path)
		},
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	logger := newLogger(cfg, false)
	logger.Info("wlddc starting",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	registry := display.NewRegistry()
	registry.SetLogger(logger)

	m := metrics.New()
	recorders := []control.Recorder{m}
	checks := map[string]api.HealthChecker{}

	// Identity store and command history (optional)
	var (
		identities display.Repository
		history    audit.Repository
	)
	if cfg.Database.Enabled {
		db, err := openIdentityStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening identity store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("error closing database", "error", err)
			} else {
				logger.Info("database closed")
			}
		}()
		identities = display.NewSQLiteRepository(db.DB)
		commands := audit.NewSQLiteRepository(db.DB)
		pruneHistory(ctx, commands, cfg.Database.HistoryRetention, logger)
		history = commands
		recorders = append(recorders, audit.NewRecorder(commands, logger))
		checks["database"] = db
		logger.Info("identity store ready", "path", db.Path())
	}

	// Telemetry (optional, non-fatal)
	var telemetry agent.Telemetry
	influx, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		logger.Debug("InfluxDB disabled")
	case err != nil:
		logger.Warn("InfluxDB connection failed, continuing without telemetry", "error", err)
	default:
		influx.SetOnError(func(err error) {
			logger.Warn("InfluxDB write error", "error", err)
		})
		defer func() {
			if err := influx.Close(); err != nil {
				logger.Error("error closing InfluxDB", "error", err)
			} else {
				logger.Info("InfluxDB client closed")
			}
		}()
		telemetry = influx
		recorders = append(recorders, influx)
		checks["influxdb"] = influx
		logger.Info("connected to InfluxDB", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	runner := process.NewExec(cfg.Agent.CommandTimeout)
	runner.SetLogger(logger)
	set := backends.New(cfg.Tools, runner)

	executor := control.NewExecutor(set.Hardware, registry, control.ConfigFromAgent(cfg.Agent))
	executor.SetLogger(logger)
	executor.SetRecorder(control.MultiRecorder(recorders...))

	a, err := agent.New(agent.Options{
		Config:     cfg,
		Registry:   registry,
		Outputs:    set.Outputs,
		Buses:      set.Buses,
		Commander:  executor,
		Dialer:     newDialer(cfg.MQTT, mdns.NewResolver(mdns.DefaultTimeout, logger), logger),
		Overrides:  display.OverridesFromConfig(cfg.Displays.Overrides),
		Identities: identities,
		Telemetry:  telemetry,
		Recorder:   m,
		Logger:     logger,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	// Status API (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   logger,
			Registry: registry,
			Agent:    a,
			Metrics:  m.Handler(),
			History:  history,
			Checks:   checks,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if err := srv.Close(); err != nil {
				logger.Error("error closing API server", "error", err)
			} else {
				logger.Info("API server stopped")
			}
		}()
	}

	if cfg.Agent.WatchConfig && configPath != "" {
		stop, err := watchConfig(configPath, a, logger)
		if err != nil {
			logger.Warn("config hot reload unavailable", "error", err)
		} else {
			defer stop()
		}
	}

	if cfg.Agent.ResumeRefresh {
		w := logind.NewWatcher(a.RequestRefresh, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("resume detection unavailable", "error", err)
			}
		}()
	}

	logger.Info("wlddc started")
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("running agent: %w", err)
	}
	logger.Info("wlddc stopped")
	return nil
}

// watchConfig reloads display overrides and the log level when the config
// file changes. Other settings need a restart.
func watchConfig(path string, a *agent.Agent, logger *logging.Logger) (func(), error) {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		logger.SetLevel(cfg.Logging.Level)
		a.SetOverrides(display.OverridesFromConfig(cfg.Displays.Overrides))
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return func() {
		if err := w.Stop(); err != nil {
			logger.Warn("stopping config watcher", "error", err)
		}
	}, nil
}

// pruneHistory drops command history older than retention. Zero keeps
// everything.
func pruneHistory(ctx context.Context, repo audit.Repository, retention time.Duration, logger *logging.Logger) {
	if retention <= 0 {
		return
	}
	n, err := repo.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Warn("pruning command history", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned command history", "entries", n, "retention", retention)
	}
}
