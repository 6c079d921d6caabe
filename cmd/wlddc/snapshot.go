package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/wlddc/internal/audit"
	"github.com/nerrad567/wlddc/internal/backends"
	"github.com/nerrad567/wlddc/internal/control"
	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/database"
	"github.com/nerrad567/wlddc/internal/infrastructure/logging"
	"github.com/nerrad567/wlddc/internal/process"
	"github.com/nerrad567/wlddc/migrations"
)

// snapshot is one enumeration and correlation pass, used by the one-shot
// commands. It shares the correlator, registry and executor with the agent.
type snapshot struct {
	registry *display.Registry
	executor *control.Executor
	result   display.Result
	close    func()
}

// takeSnapshot enumerates outputs and buses, restores known identities when
// the identity store is enabled, correlates and persists any new identities.
func takeSnapshot(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*snapshot, error) {
	runner := process.NewExec(cfg.Agent.CommandTimeout)
	runner.SetLogger(logger)
	set := backends.New(cfg.Tools, runner)

	registry := display.NewRegistry()
	registry.SetLogger(logger)

	closeFn := func() {}
	var (
		repo    display.Repository
		history control.Recorder
	)
	if cfg.Database.Enabled {
		db, err := openIdentityStore(ctx, cfg.Database)
		if err != nil {
			// Identities are a convenience for one-shot commands.
			logger.Warn("identity store unavailable", "error", err)
		} else {
			repo = display.NewSQLiteRepository(db.DB)
			history = audit.NewRecorder(audit.NewSQLiteRepository(db.DB), logger)
			closeFn = func() {
				if err := db.Close(); err != nil {
					logger.Error("error closing database", "error", err)
				}
			}
			if known, err := repo.List(ctx); err != nil {
				logger.Warn("loading display identities", "error", err)
			} else {
				registry.Restore(known)
			}
		}
	}

	taken := time.Now()
	outputs, err := set.Outputs.ListOutputs(ctx)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("listing outputs: %w", err)
	}
	buses, err := set.Buses.ListBuses(ctx)
	if err != nil {
		// Power control still works without DDC/CI.
		logger.Warn("listing DDC/CI buses", "error", err)
		buses = nil
	}

	res := display.Correlate(outputs, buses, display.OverridesFromConfig(cfg.Displays.Overrides), registry.Snapshot())
	res.Taken = taken
	changes := registry.ApplyCorrelation(res)

	if repo != nil && hasIdentityChange(changes) {
		if err := repo.Upsert(ctx, registry.Present()); err != nil {
			logger.Warn("saving display identities", "error", err)
		}
	}

	executor := control.NewExecutor(set.Hardware, registry, control.ConfigFromAgent(cfg.Agent))
	executor.SetLogger(logger)
	if history != nil {
		executor.SetRecorder(history)
	}

	return &snapshot{
		registry: registry,
		executor: executor,
		result:   res,
		close:    closeFn,
	}, nil
}

// openIdentityStore opens the SQLite database and applies migrations.
func openIdentityStore(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func hasIdentityChange(changes []display.Change) bool {
	for _, c := range changes {
		if c.New || c.Has(display.FieldIdentity) {
			return true
		}
	}
	return false
}

// errNoDisplays is returned when enumeration found nothing to act on.
var errNoDisplays = errors.New("no displays found")

// targets selects present displays by output name or unique id. An empty
// selector selects every present display that passes keep.
func targets(displays []display.Display, selector string, keep func(display.Display) bool) ([]display.Display, error) {
	var out []display.Display
	for _, d := range displays {
		if !d.Present {
			continue
		}
		if selector != "" {
			if d.UniqueID == selector || d.OutputID == selector {
				return []display.Display{d}, nil
			}
			continue
		}
		if keep == nil || keep(d) {
			out = append(out, d)
		}
	}

	switch {
	case selector != "":
		return nil, fmt.Errorf("display not found: %s", selector)
	case len(out) == 0:
		return nil, errNoDisplays
	}
	return out, nil
}
