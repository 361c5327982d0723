package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pneutrack/console/internal/session"
)

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client, time.Hour), mr
}

func sampleSession() session.Session {
	return session.Session{
		AccessToken:    "access-1",
		RefreshToken:   "refresh-1",
		Role:           "transportador",
		SubjectID:      "17",
		Profile:        json.RawMessage(`{"nome":"Ana"}`),
		RedirectTarget: "/transportador/dashboard",
	}
}

func storesUnderTest(t *testing.T) map[string]session.Store {
	redisStore, _ := newRedisStore(t)
	return map[string]session.Store{
		"memory": session.NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "p1", sampleSession()))

			got, err := store.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "access-1", got.AccessToken)
			assert.Equal(t, "refresh-1", got.RefreshToken)
			assert.Equal(t, "transportador", got.Role)
			assert.Equal(t, "17", got.SubjectID)
			assert.JSONEq(t, `{"nome":"Ana"}`, string(got.Profile))
			assert.Equal(t, "/transportador/dashboard", got.RedirectTarget)

			_, err = store.Get(ctx, "other")
			assert.ErrorIs(t, err, session.ErrNoSession)
		})
	}
}

func TestStoreRejectsPartialSessions(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			partial := sampleSession()
			partial.RefreshToken = ""
			assert.ErrorIs(t, store.Set(ctx, "p1", partial), session.ErrPartialSession)

			_, err := store.Get(ctx, "p1")
			assert.ErrorIs(t, err, session.ErrNoSession)
		})
	}
}

func TestStoreClearRemovesEverySlot(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "p1", sampleSession()))
			require.NoError(t, store.Clear(ctx, "p1"))
			require.NoError(t, store.Clear(ctx, "p1"))

			_, err := store.Get(ctx, "p1")
			assert.ErrorIs(t, err, session.ErrNoSession)
			profiles, err := store.Profiles(ctx)
			require.NoError(t, err)
			assert.Empty(t, profiles)
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := store.Update(ctx, "missing", func(s session.Session) (session.Session, error) { return s, nil })
			assert.ErrorIs(t, err, session.ErrNoSession)

			require.NoError(t, store.Set(ctx, "p1", sampleSession()))
			require.NoError(t, store.Update(ctx, "p1", func(s session.Session) (session.Session, error) {
				s.AccessToken = "access-2"
				return s, nil
			}))
			got, err := store.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "access-2", got.AccessToken)
			assert.Equal(t, "refresh-1", got.RefreshToken)

			err = store.Update(ctx, "p1", func(s session.Session) (session.Session, error) {
				s.Role = ""
				return s, nil
			})
			assert.ErrorIs(t, err, session.ErrPartialSession)
			got, err = store.Get(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, "transportador", got.Role)
		})
	}
}

func TestStoreProfiles(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "b", sampleSession()))
			require.NoError(t, store.Set(ctx, "a", sampleSession()))

			profiles, err := store.Profiles(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, profiles)
		})
	}
}

func TestRedisStoreWritesSingleKeyWithTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), "p1", sampleSession()))

	keys := mr.Keys()
	assert.Equal(t, []string{"console:session:p1"}, keys)
	assert.Equal(t, time.Hour, mr.TTL("console:session:p1"))
}

func TestRedisStoreTreatsCorruptPayloadAsError(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("console:session:p1", `{"access_token":"only"}`))

	_, err := store.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, session.ErrPartialSession)
}
