package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ""), mr
}

func TestStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := newStore(t)
			require.NoError(t, s.Ping(ctx))

			first := New("user-1", []string{"pwd"}, true, time.Hour)
			second := New("user-1", nil, false, time.Hour)
			other := New("user-2", nil, false, time.Hour)
			for _, sess := range []Session{first, second, other} {
				require.NoError(t, s.Save(ctx, sess))
			}

			got, err := s.Get(ctx, first.ID)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.UserID)
			require.Equal(t, []string{"pwd"}, got.AMR)
			require.True(t, got.Persistent)

			_, err = s.Get(ctx, "unknown")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Delete(ctx, second.ID))
			require.NoError(t, s.Delete(ctx, second.ID))
			_, err = s.Get(ctx, second.ID)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.DeleteUser(ctx, "user-1"))
			_, err = s.Get(ctx, first.ID)
			require.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, other.ID)
			require.NoError(t, err)
		})
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	live := New("u", nil, false, time.Hour)
	stale := New("u", nil, false, time.Hour)
	stale.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, s.Save(ctx, live))
	require.NoError(t, s.Save(ctx, stale))

	n, err := s.Sweep(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, s.Len())
}

func TestMemoryStoreGetDropsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	sess := New("u", nil, false, time.Hour)
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.Save(ctx, sess))

	_, err := s.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, s.Len())
}

func TestRedisStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newRedisStore(t)

	sess := New("user-1", nil, false, time.Minute)
	require.NoError(t, s.Save(ctx, sess))
	require.True(t, mr.Exists(defaultPrefix+sess.ID))
	require.Positive(t, mr.TTL(defaultPrefix+"user:user-1"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists(defaultPrefix+"user:user-1"))
}
