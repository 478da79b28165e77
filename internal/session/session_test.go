package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-users/internal/engine"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/schema"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setup(t *testing.T) (*Session, *userstore.Store, *manualClock) {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	store := userstore.New(engine.NewMemStore("test", nil, nil, 0), userstore.Options{Clock: clock})
	require.NoError(t, store.Initialize())
	require.NoError(t, store.CreateUser("bob", "secret"))
	return New(store, Options{Timeout: 10 * time.Minute, Clock: clock}), store, clock
}

func descriptions(t *testing.T, store *userstore.Store, username string) []string {
	t.Helper()
	list, err := store.ActivitiesFor(username)
	require.NoError(t, err)
	var out []string
	for _, a := range list {
		out = append(out, a.Description)
	}
	return out
}

func TestSession_LoginLogout(t *testing.T) {
	s, store, clock := setup(t)

	require.False(t, s.IsLoggedIn())
	require.False(t, s.Login("bob", "wrong"))
	require.False(t, s.IsLoggedIn())

	require.True(t, s.Login("bob", "secret"))
	require.True(t, s.IsLoggedIn())

	user, ok := s.CurrentUser()
	require.True(t, ok)
	require.Equal(t, "bob", user.Username)

	last, ok := s.LastActivity()
	require.True(t, ok)
	require.True(t, last.Equal(clock.Now()))

	s.Logout()
	require.False(t, s.IsLoggedIn())
	_, ok = s.LastActivity()
	require.False(t, ok)

	require.Equal(t, []string{"User logged in", "User logged out"}, descriptions(t, store, "bob"))
}

func TestSession_LogoutWithoutLogin(t *testing.T) {
	s, store, _ := setup(t)

	s.Logout()

	require.Empty(t, descriptions(t, store, "bob"))
}

func TestSession_CorruptMarker(t *testing.T) {
	s, store, _ := setup(t)
	require.NoError(t, store.Storage().SetItem(schema.CurrentUserKey, "{oops"))

	require.False(t, s.IsLoggedIn())
}

func TestSession_Expiry(t *testing.T) {
	s, store, clock := setup(t)
	require.True(t, s.Login("bob", "secret"))

	clock.Advance(5 * time.Minute)
	require.False(t, s.Expire())
	require.True(t, s.IsLoggedIn())

	require.NoError(t, s.Touch())
	clock.Advance(9 * time.Minute)
	require.False(t, s.Expired(clock.Now()), "touch resets the window")

	clock.Advance(2 * time.Minute)
	require.True(t, s.Expired(clock.Now()))
	require.True(t, s.Expire())
	require.False(t, s.IsLoggedIn())

	require.Equal(t, []string{"User logged in", "Session expired"}, descriptions(t, store, "bob"))
}

func TestSession_NeverStampedDoesNotExpire(t *testing.T) {
	s, store, clock := setup(t)
	_, err := sdk.SetJSON(store.Storage(), schema.CurrentUserKey, schema.UserRecord{Username: "bob"})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	require.False(t, s.Expire())
	require.True(t, s.IsLoggedIn())
}

func TestSession_Watch(t *testing.T) {
	s, _, clock := setup(t)
	require.True(t, s.Login("bob", "secret"))
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !s.IsLoggedIn() }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestSession_ClearAllEndsSession(t *testing.T) {
	s, store, _ := setup(t)
	require.True(t, s.Login("bob", "secret"))

	require.NoError(t, store.ClearAll())

	require.False(t, s.IsLoggedIn())
	require.False(t, s.Login("bob", "secret"))
	require.True(t, s.Login("admin", userstore.DefaultAdminPassword))
}
