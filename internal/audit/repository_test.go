package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/database"
	"github.com/bcsanches/DCCLite-sub001/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "broker.db"), WALMode: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestCreateFillsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	e := &Entry{Action: ActionDisconnect, Device: "Bench", Source: SourceAPI}
	require.NoError(t, repo.Create(context.Background(), e))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, ResultOK, e.Result)
}

func TestCreateRejectsIncompleteEntry(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.Create(context.Background(), &Entry{Device: "Bench", Source: SourceAPI})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestListNewestFirstWithFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionSetState, Device: "Bench", Target: "12", Source: SourceMQTT, CreatedAt: base,
			Details: map[string]any{"state": "ACTIVE"}},
		{Action: ActionStartTask, Device: "Bench", Target: "network_test", Source: SourceAPI, CreatedAt: base.Add(time.Second)},
		{Action: ActionSetState, Device: "Yard", Target: "7", Source: SourceAPI, CreatedAt: base.Add(1500 * time.Millisecond),
			Result: Result(errors.New("device not online"))},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all.Entries, 3)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	assert.Equal(t, "Yard", all.Entries[0].Device)
	assert.Equal(t, "device not online", all.Entries[0].Result)
	assert.Equal(t, "12", all.Entries[2].Target)
	assert.Equal(t, "ACTIVE", all.Entries[2].Details["state"])
	assert.True(t, all.Entries[2].CreatedAt.Equal(base))

	bench, err := repo.List(ctx, Filter{Device: "Bench"})
	require.NoError(t, err)
	assert.Equal(t, 2, bench.Total)

	sets, err := repo.List(ctx, Filter{Action: ActionSetState, Source: SourceAPI})
	require.NoError(t, err)
	require.Len(t, sets.Entries, 1)
	assert.Equal(t, "Yard", sets.Entries[0].Device)

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, ActionStartTask, page.Entries[0].Action)
}

func TestListClampsLimit(t *testing.T) {
	repo := newTestRepo(t)
	res, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -4})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.Empty(t, res.Entries)
	assert.NotNil(t, res.Entries)
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultOK, Result(nil))
	assert.Equal(t, "boom", Result(errors.New("boom")))
}
