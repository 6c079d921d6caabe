package display

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists display identities so unique ids survive restarts.
// Live state is never stored.
type Repository interface {
	// List returns every stored identity sorted by unique id.
	List(ctx context.Context) ([]Display, error)

	// Upsert inserts or updates identities. first_seen is preserved.
	Upsert(ctx context.Context, displays []Display) error

	// Delete removes an identity. Returns ErrDisplayNotFound if absent.
	Delete(ctx context.Context, uniqueID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db must already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored identity sorted by unique id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Display, error) {
	query := `
		SELECT unique_id, output_id, bus_path, make, model, serial,
			match_method, brightness_unsupported, last_seen
		FROM display_identities
		ORDER BY unique_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying display identities: %w", err)
	}
	defer rows.Close()

	var displays []Display
	for rows.Next() {
		var (
			d           Display
			match       string
			unsupported int
			lastSeen    string
		)
		if err := rows.Scan(&d.UniqueID, &d.OutputID, &d.BusPath, &d.Make, &d.Model, &d.Serial,
			&match, &unsupported, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning display identity: %w", err)
		}
		d.Match = MatchMethod(match)
		d.BrightnessUnsupported = unsupported != 0
		d.Power = PowerUnknown
		if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
			d.LastSeen = t
		}
		displays = append(displays, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating display identities: %w", err)
	}
	return displays, nil
}

// Upsert inserts or updates identities in a single transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, displays []Display) error {
	if len(displays) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO display_identities (
			unique_id, output_id, bus_path, make, model, serial,
			match_method, brightness_unsupported, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			output_id = excluded.output_id,
			bus_path = excluded.bus_path,
			make = excluded.make,
			model = excluded.model,
			serial = excluded.serial,
			match_method = excluded.match_method,
			brightness_unsupported = excluded.brightness_unsupported,
			last_seen = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range displays {
		lastSeen := d.LastSeen
		if lastSeen.IsZero() {
			lastSeen = now
		}
		unsupported := 0
		if d.BrightnessUnsupported {
			unsupported = 1
		}
		if _, err := stmt.ExecContext(ctx,
			d.UniqueID, d.OutputID, d.BusPath, d.Make, d.Model, d.Serial,
			string(d.Match), unsupported,
			now.Format(time.RFC3339Nano), lastSeen.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("upserting display %s: %w", d.UniqueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes an identity.
func (r *SQLiteRepository) Delete(ctx context.Context, uniqueID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM display_identities WHERE unique_id = ?`, uniqueID)
	if err != nil {
		return fmt.Errorf("deleting display %s: %w", uniqueID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDisplayNotFound, uniqueID)
	}
	return nil
}
