// Package database provides SQLite connectivity for wlddc's durable state.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Schema migrations read from an fs.FS (embedded by the migrations package)
//   - Transaction helper and health check
//
// Only display identities are persisted: the unique ids published to Home
// Assistant must survive restarts even when a monitor is unplugged while the
// agent is down.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
package database
