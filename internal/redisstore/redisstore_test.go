package redisstore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

func newStore(t *testing.T, origin string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := Connect(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, origin), mr
}

func TestStore_ItemLifecycle(t *testing.T) {
	s, mr := newStore(t, "app")

	_, err := s.GetItem("users")
	require.ErrorIs(t, err, sdk.ErrKeyNotFound)

	require.NoError(t, s.SetItem("users", `[{"username":"admin"}]`))
	require.NoError(t, s.SetItem("currentUser", `{}`))

	got, err := s.GetItem("users")
	require.NoError(t, err)
	require.Equal(t, `[{"username":"admin"}]`, got)

	raw, err := mr.Get("celerix:app:users")
	require.NoError(t, err)
	require.Equal(t, got, raw)

	keys, err := s.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"currentUser", "users"}, keys)

	require.NoError(t, s.RemoveItem("users"))
	require.NoError(t, s.RemoveItem("users"), "removing a missing key is not an error")
	_, err = s.GetItem("users")
	require.ErrorIs(t, err, sdk.ErrKeyNotFound)

	require.ErrorIs(t, s.SetItem("bad key", "x"), sdk.ErrInvalidKey)
}

func TestStore_OriginsAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(Config{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer rdb.Close()

	a, b := New(rdb, "a"), New(rdb, "b")
	require.NoError(t, a.SetItem("users", "[]"))

	keys, err := b.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(Config{Addr: addr})
	require.Error(t, err)
}

func TestStore_BacksUserStore(t *testing.T) {
	s, _ := newStore(t, "users")

	store := userstore.New(s, userstore.Options{})
	require.NoError(t, store.Initialize())
	require.NoError(t, store.CreateUser("bob", "pw"))

	reloaded := userstore.New(s, userstore.Options{})
	require.NoError(t, reloaded.Initialize())
	_, ok := reloaded.ValidateCredentials("bob", "pw")
	require.True(t, ok)
}
