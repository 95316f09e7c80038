package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/arena"
	"arena-server/internal/database"
)

// setupTestRepo opens a migrated SQLite database in a temp dir.
func setupTestRepo(t *testing.T) (*StatsRepository, database.Service) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "arena.db") + "?_foreign_keys=on"
	db, err := database.New(context.Background(), "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStatsRepository(db.DB(), db.Dialect()), db
}

func TestStatsRepository_SaveAndList(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	first := sampleSummary()
	id1, err := repo.SaveMatch(ctx, "first.ast", first)
	require.NoError(t, err)

	second := sampleSummary()
	second.Players = []arena.Standing{{UserName: "Cat", Colour: "#0000CC"}}
	second.GameLength = [2]int{0, 42}
	id2, err := repo.SaveMatch(ctx, "second.ast", second)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	matches, err := repo.RecentMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// newest first
	assert.Equal(t, "second.ast", matches[0].FileName)
	assert.Equal(t, [2]int{0, 42}, matches[0].GameLength)
	assert.Equal(t, []arena.Standing{{UserName: "Cat", Colour: "#0000CC"}}, matches[0].Players)

	assert.Equal(t, "first.ast", matches[1].FileName)
	assert.Equal(t, first.Players, matches[1].Players, "rank order preserved")
	assert.WithinDuration(t, first.StartedAt, matches[1].StartedAt, time.Second)
	assert.WithinDuration(t, first.EndedAt, matches[1].EndedAt, time.Second)

	limited, err := repo.RecentMatches(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStatsRepository_StoreAsSink(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, StatsRecord{Name: "sink.ast", Summary: sampleSummary()}))

	matches, err := repo.RecentMatches(ctx, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sink.ast", matches[0].FileName)
}

func TestStatsRepository_EmptyMatch(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	s := sampleSummary()
	s.Players = nil
	_, err := repo.SaveMatch(ctx, "empty.ast", s)
	require.NoError(t, err)

	matches, err := repo.RecentMatches(ctx, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.NotNil(t, matches[0].Players)
	assert.Empty(t, matches[0].Players)
}

func TestStatsRepository_Rebind(t *testing.T) {
	pg := NewStatsRepository(nil, "postgres")
	assert.Equal(t, "SELECT $1, $2 WHERE a = $3", pg.rebind("SELECT ?, ? WHERE a = ?"))

	lite := NewStatsRepository(nil, "sqlite3")
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}
