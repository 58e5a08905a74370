package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/tangle/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T) *store.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func save(t *testing.T, client *store.Client, id string, startedAt int64) {
	t.Helper()
	require.NoError(t, client.SaveRun(context.Background(), &store.Run{
		ID:          id,
		Name:        "run",
		Status:      store.RunStatusCompleted,
		StartedAtMs: startedAt,
	}))
}

func TestResolveRunID(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)

	a := "aaaaaaaa-1111-4111-8111-111111111111"
	b := "aaaaaaab-2222-4222-8222-222222222222"
	c := "cccccccc-3333-4333-8333-333333333333"
	save(t, client, a, 3000)
	save(t, client, b, 1000)
	save(t, client, c, 2000)

	t.Run("full UUID", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, c)
		require.NoError(t, err)
		assert.Equal(t, c, id)
	})

	t.Run("full UUID that does not exist", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "dddddddd-4444-4444-8444-444444444444")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, "cccccc")
		require.NoError(t, err)
		assert.Equal(t, c, id)
	})

	t.Run("prefix is case insensitive", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, "CCCCCCCC")
		require.NoError(t, err)
		assert.Equal(t, c, id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "aaaaaaa")
		require.Error(t, err)
		assert.True(t, IsAmbiguousError(err))

		var amb *AmbiguousError
		require.True(t, errors.As(err, &amb))
		assert.Equal(t, []string{a, b}, amb.Matches)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "ffffff")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "aaa")
		assert.ErrorContains(t, err, "at least 6 characters")
	})

	t.Run("latest", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, Latest)
		require.NoError(t, err)
		assert.Equal(t, a, id)
	})
}

func TestResolveLatestWithoutRuns(t *testing.T) {
	_, err := ResolveRunID(context.Background(), setupClient(t), Latest)
	assert.True(t, IsNotFoundError(err))
}

func TestFormatAmbiguousError(t *testing.T) {
	var matches []string
	for i := 0; i < 12; i++ {
		matches = append(matches, fmt.Sprintf("abcdef%02d", i))
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})

	assert.Contains(t, msg, "matches 12 runs")
	assert.Contains(t, msg, "abcdef09")
	assert.NotContains(t, msg, "abcdef10")
	assert.Contains(t, msg, "...and 2 more")
}
