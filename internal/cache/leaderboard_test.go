package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/stats"
	"github.com/bountyboard/bounty-server/internal/testutil"
)

func TestLeaderboardCache(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testutil.StartRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	lb := NewLeaderboard(client, time.Minute)
	require.NoError(t, lb.Ping(ctx))

	t.Run("should report a miss for an empty cache", func(t *testing.T) {
		entries, found, err := lb.Get(ctx, stats.TimeframeWeek)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, entries)
	})

	t.Run("should round-trip entries per timeframe", func(t *testing.T) {
		want := []models.LeaderboardEntry{
			{ResearcherID: uuid.New(), Identity: "alice", Earnings: 5000, Accepted: 2, TotalReports: 3},
			{ResearcherID: uuid.New(), Identity: "bob", Earnings: 100, Accepted: 1, TotalReports: 1},
		}
		require.NoError(t, lb.Set(ctx, stats.TimeframeMonth, gen(t, lb), want))

		got, found, err := lb.Get(ctx, stats.TimeframeMonth)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, got)

		_, found, err = lb.Get(ctx, stats.TimeframeYear)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("should drop every timeframe on invalidate", func(t *testing.T) {
		for _, tf := range stats.Timeframes {
			require.NoError(t, lb.Set(ctx, tf, gen(t, lb), []models.LeaderboardEntry{}))
		}
		require.NoError(t, lb.Invalidate(ctx))
		for _, tf := range stats.Timeframes {
			_, found, err := lb.Get(ctx, tf)
			require.NoError(t, err)
			assert.False(t, found, tf)
		}
	})

	t.Run("should advance the generation on invalidate", func(t *testing.T) {
		before := gen(t, lb)
		require.NoError(t, lb.Invalidate(ctx))
		assert.Equal(t, before+1, gen(t, lb))
	})

	t.Run("should not store a board computed before an invalidation", func(t *testing.T) {
		stale := gen(t, lb)
		require.NoError(t, lb.Invalidate(ctx))

		board := []models.LeaderboardEntry{{ResearcherID: uuid.New(), Identity: "alice", TotalReports: 1}}
		require.NoError(t, lb.Set(ctx, stats.TimeframeAll, stale, board))

		_, found, err := lb.Get(ctx, stats.TimeframeAll)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, lb.Set(ctx, stats.TimeframeAll, gen(t, lb), board))
		got, found, err := lb.Get(ctx, stats.TimeframeAll)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, board, got)
	})
}

func gen(t *testing.T, lb *Leaderboard) int64 {
	t.Helper()
	g, err := lb.Generation(context.Background())
	require.NoError(t, err)
	return g
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not a url")
	assert.Error(t, err)
}
