package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the command surface against any Store. Keys are
// prefixed so the suite can share a database with other data.
func runStoreSuite(t *testing.T, s Store, prefix string) {
	ctx := context.Background()
	key := func(name string) string { return prefix + name }

	t.Run("connection", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
		assert.True(t, s.Connected(ctx))
	})

	t.Run("strings", func(t *testing.T) {
		_, err := s.Get(ctx, key("missing"))
		assert.ErrorIs(t, err, ErrNil)

		require.NoError(t, s.Set(ctx, key("str"), "v1", 0))
		require.NoError(t, s.Set(ctx, key("str"), "v2", 0))
		v, err := s.Get(ctx, key("str"))
		require.NoError(t, err)
		assert.Equal(t, "v2", v)

		n, err := s.Exists(ctx, key("str"), key("missing"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ok, err := s.Expire(ctx, key("str"), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Expire(ctx, key("missing"), time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err = s.Del(ctx, key("str"), key("missing"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = s.Get(ctx, key("str"))
		assert.ErrorIs(t, err, ErrNil)
	})

	t.Run("sets", func(t *testing.T) {
		k := key("set")
		require.NoError(t, s.SAdd(ctx, k, "a", "b", "a"))
		members, err := s.SMembers(ctx, k)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)

		ok, err := s.SIsMember(ctx, k, "a")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.SRem(ctx, k, "a"))
		ok, err = s.SIsMember(ctx, k, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		members, err = s.SMembers(ctx, key("noset"))
		require.NoError(t, err)
		assert.Empty(t, members)

		_, err = s.Del(ctx, k)
		require.NoError(t, err)
	})

	t.Run("hashes", func(t *testing.T) {
		k := key("hash")
		require.NoError(t, s.HSet(ctx, k, "f1", "v1"))
		require.NoError(t, s.HSet(ctx, k, "f2", "v2"))

		v, err := s.HGet(ctx, k, "f1")
		require.NoError(t, err)
		assert.Equal(t, "v1", v)
		_, err = s.HGet(ctx, k, "nope")
		assert.ErrorIs(t, err, ErrNil)

		all, err := s.HGetAll(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, all)

		require.NoError(t, s.HDel(ctx, k, "f1"))
		all, err = s.HGetAll(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"f2": "v2"}, all)

		all, err = s.HGetAll(ctx, key("nohash"))
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = s.Del(ctx, k)
		require.NoError(t, err)
	})

	t.Run("sorted sets", func(t *testing.T) {
		k := key("zset")
		require.NoError(t, s.ZAdd(ctx, k,
			ScoredMember{Member: "c", Score: 3},
			ScoredMember{Member: "a", Score: 1},
			ScoredMember{Member: "b", Score: 2},
		))

		n, err := s.ZCard(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		all, err := s.ZRangeByScore(ctx, k, ScoreRange{})
		require.NoError(t, err)
		assert.Equal(t, []ScoredMember{{"a", 1}, {"b", 2}, {"c", 3}}, all)

		some, err := s.ZRangeByScore(ctx, k, ScoreRange{Min: Score(2), Count: 1})
		require.NoError(t, err)
		assert.Equal(t, []ScoredMember{{"b", 2}}, some)

		score, err := s.ZIncrBy(ctx, k, "a", 10)
		require.NoError(t, err)
		assert.Equal(t, 11.0, score)

		score, err = s.ZScore(ctx, k, "a")
		require.NoError(t, err)
		assert.Equal(t, 11.0, score)
		_, err = s.ZScore(ctx, k, "zz")
		assert.ErrorIs(t, err, ErrNil)

		require.NoError(t, s.ZRem(ctx, k, "a", "b"))
		all, err = s.ZRangeByScore(ctx, k, ScoreRange{Max: Score(100)})
		require.NoError(t, err)
		assert.Equal(t, []ScoredMember{{"c", 3}}, all)

		_, err = s.Del(ctx, k)
		require.NoError(t, err)
	})
}
