package display

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/wlddc/internal/infrastructure/config"
	"github.com/nerrad567/wlddc/internal/infrastructure/database"
	"github.com/nerrad567/wlddc/migrations"
)

func setupRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "wlddc.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx, migrations.FS, migrations.Dir))
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_UpsertAndList(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	seen := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	err := repo.Upsert(ctx, []Display{
		{UniqueID: "hnmnb00590", OutputID: "HDMI-A-1", BusPath: "/dev/i2c-7", Make: "AOC", Model: "Q27G2G4",
			Serial: "HNMNB00590", Match: MatchSerial, Power: PowerOn, Brightness: IntPtr(80), LastSeen: seen},
		{UniqueID: "ls27a600u", OutputID: "HDMI-A-2", Make: "Samsung", Model: "LS27A600U",
			Match: MatchNone, BrightnessUnsupported: true, LastSeen: seen},
	})
	require.NoError(t, err)

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "hnmnb00590", got[0].UniqueID)
	assert.Equal(t, "/dev/i2c-7", got[0].BusPath)
	assert.Equal(t, MatchSerial, got[0].Match)
	assert.Equal(t, PowerUnknown, got[0].Power, "live state is not persisted")
	assert.Nil(t, got[0].Brightness)
	assert.True(t, got[0].LastSeen.Equal(seen))

	assert.Equal(t, "ls27a600u", got[1].UniqueID)
	assert.Empty(t, got[1].BusPath)
	assert.True(t, got[1].BrightnessUnsupported)
}

func TestSQLiteRepository_UpsertUpdates(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []Display{{UniqueID: "desk", OutputID: "DP-1", BusPath: "/dev/i2c-4"}}))
	require.NoError(t, repo.Upsert(ctx, []Display{{UniqueID: "desk", OutputID: "DP-2", BusPath: "/dev/i2c-5"}}))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DP-2", got[0].OutputID)
	assert.Equal(t, "/dev/i2c-5", got[0].BusPath)
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []Display{{UniqueID: "desk", OutputID: "DP-1"}}))
	require.NoError(t, repo.Delete(ctx, "desk"))
	assert.ErrorIs(t, repo.Delete(ctx, "desk"), ErrDisplayNotFound)

	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRepository_RestoreKeepsIDsAcrossRestart(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	outputs := []Output{dellOutput("DP-1", ""), dellOutput("DP-2", "")}

	first := NewRegistry()
	first.ApplyCorrelation(tick(outputs, nil, nil, t0))
	require.NoError(t, repo.Upsert(ctx, first.Present()))

	// Next run: the DP-1 panel is off the desk, DP-2 is still there.
	stored, err := repo.List(ctx)
	require.NoError(t, err)
	second := NewRegistry()
	second.Restore(stored)
	second.ApplyCorrelation(tick(outputs[1:], nil, second.Snapshot(), t0.Add(time.Hour)))

	d, err := second.Get("dell_u2720q_2")
	require.NoError(t, err)
	assert.Equal(t, "DP-2", d.OutputID)
	assert.True(t, d.Present)
}
