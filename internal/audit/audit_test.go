package audit

import (
	"context"
	"errors"
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

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	entries := []Entry{
		{UniqueID: "hnmnb00590", Kind: "power", Result: "ok", Attempts: 1, DurationMS: 40, CreatedAt: base},
		{UniqueID: "hnmnb00590", Kind: "brightness", Result: "unresponsive", Attempts: 3, DurationMS: 2100, CreatedAt: base.Add(500 * time.Millisecond)},
		{UniqueID: "ls27a600u", Kind: "power", Result: "ok", Attempts: 1, DurationMS: 35, CreatedAt: base.Add(time.Second)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
		assert.NotEmpty(t, entries[i].ID)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, "ls27a600u", all.Entries[0].UniqueID, "newest first")
	assert.Equal(t, "brightness", all.Entries[1].Kind, "sub-second ordering")
	assert.True(t, all.Entries[1].CreatedAt.Equal(base.Add(500*time.Millisecond)))
	assert.Equal(t, int64(2100), all.Entries[1].DurationMS)

	lg, err := repo.List(ctx, Filter{UniqueID: "hnmnb00590"})
	require.NoError(t, err)
	assert.Equal(t, 2, lg.Total)

	failed, err := repo.List(ctx, Filter{Result: "unresponsive", Kind: "brightness"})
	require.NoError(t, err)
	require.Len(t, failed.Entries, 1)
	assert.Equal(t, 3, failed.Entries[0].Attempts)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "brightness", page.Entries[0].Kind)
}

func TestSQLiteRepository_ListClampsAndEmpty(t *testing.T) {
	repo := setupRepository(t)

	res, err := repo.List(context.Background(), Filter{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		require.NoError(t, repo.Create(ctx, &Entry{
			UniqueID: "hnmnb00590", Kind: "power", Result: "ok", Attempts: 1, CreatedAt: now.Add(-age),
		}))
	}

	n, err := repo.Prune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestRecorder_WritesResults(t *testing.T) {
	repo := setupRepository(t)
	rec := NewRecorder(repo, nil)
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return at }

	rec.CommandAttempt("brightness")
	rec.CommandResult("hnmnb00590", "brightness", "ok", 2, 1500*time.Millisecond)

	res, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	assert.Equal(t, "hnmnb00590", e.UniqueID)
	assert.Equal(t, "brightness", e.Kind)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, int64(1500), e.DurationMS)
	assert.True(t, e.CreatedAt.Equal(at))
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

type captureLogger struct{ warnings []string }

func (c *captureLogger) Warn(msg string, _ ...any) { c.warnings = append(c.warnings, msg) }

func TestRecorder_LogsWriteFailure(t *testing.T) {
	log := &captureLogger{}
	rec := NewRecorder(failingRepo{}, log)

	rec.CommandResult("hnmnb00590", "power", "ok", 1, time.Millisecond)

	assert.Equal(t, []string{"recording command history"}, log.warnings)
}

func TestSQLiteRepository_CreateAssignsSortableIDs(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	first := Entry{UniqueID: "a", Kind: "power", Result: "ok", CreatedAt: base}
	second := Entry{UniqueID: "a", Kind: "power", Result: "ok", CreatedAt: base.Add(time.Second)}
	require.NoError(t, repo.Create(ctx, &first))
	require.NoError(t, repo.Create(ctx, &second))

	assert.Len(t, first.ID, 26)
	assert.Less(t, first.ID, second.ID)
}
