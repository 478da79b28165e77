// Package session tracks the single logged-in user on top of a userstore.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/schema"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

const (
	// DefaultTimeout is the inactivity window after which a session expires.
	DefaultTimeout = 30 * time.Minute
	// DefaultPollInterval is how often Watch checks for expiry.
	DefaultPollInterval = time.Minute
)

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Timeout time.Duration
	Clock   userstore.Clock
	Logger  logger.Logger
}

// Session stores the current user under schema.CurrentUserKey and the time of
// the last activity under schema.LastActivityKey.
type Session struct {
	store   *userstore.Store
	storage sdk.Storage
	timeout time.Duration
	clock   userstore.Clock
	log     logger.Logger
}

// New creates a session bound to store and its storage.
func New(store *userstore.Store, opts Options) *Session {
	s := &Session{
		store:   store,
		storage: store.Storage(),
		timeout: opts.Timeout,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.clock == nil {
		s.clock = userstore.SystemClock{}
	}
	if s.log == nil {
		s.log = logger.NewNoOpLogger()
	}
	s.log = s.log.With("component", "session")
	return s
}

// Login opens a session when the credentials are valid.
func (s *Session) Login(username, password string) bool {
	user, ok := s.store.ValidateCredentials(username, password)
	if !ok {
		return false
	}

	if _, err := sdk.SetJSON(s.storage, schema.CurrentUserKey, user); err != nil {
		s.log.Error("failed to store current user", "username", username, "error", err)
		return false
	}
	if err := s.Touch(); err != nil {
		s.log.Warn("failed to touch session", "error", err)
	}
	if err := s.store.RecordActivity(username, "User logged in"); err != nil {
		s.log.Warn("failed to record login", "username", username, "error", err)
	}
	return true
}

// Logout records the logout for the current user, if any, and clears the session.
func (s *Session) Logout() {
	s.end("User logged out")
}

func (s *Session) end(description string) {
	if user, ok := s.CurrentUser(); ok {
		if err := s.store.RecordActivity(user.Username, description); err != nil {
			s.log.Warn("failed to record session end", "username", user.Username, "error", err)
		}
	}
	for _, key := range []string{schema.CurrentUserKey, schema.LastActivityKey} {
		if err := s.storage.RemoveItem(key); err != nil {
			s.log.Error("failed to clear session", "key", key, "error", err)
		}
	}
}

// CurrentUser returns the logged-in user.
func (s *Session) CurrentUser() (schema.UserRecord, bool) {
	user, err := sdk.GetJSON[schema.UserRecord](s.storage, schema.CurrentUserKey)
	if err != nil {
		if !errors.Is(err, sdk.ErrKeyNotFound) {
			s.log.Error("error getting current user", "error", err)
		}
		return schema.UserRecord{}, false
	}
	return user, true
}

func (s *Session) IsLoggedIn() bool {
	_, ok := s.CurrentUser()
	return ok
}

// Touch stamps the session with the current time.
func (s *Session) Touch() error {
	ms := s.clock.Now().UnixMilli()
	return s.storage.SetItem(schema.LastActivityKey, strconv.FormatInt(ms, 10))
}

// LastActivity returns the last stamped time.
func (s *Session) LastActivity() (time.Time, bool) {
	raw, err := s.storage.GetItem(schema.LastActivityKey)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Expired reports whether the inactivity window elapsed before now.
// A session that was never stamped does not expire.
func (s *Session) Expired(now time.Time) bool {
	last, ok := s.LastActivity()
	if !ok {
		return false
	}
	return now.Sub(last) > s.timeout
}

// Expire ends the session when it is logged in and expired.
// It reports whether the session was ended.
func (s *Session) Expire() bool {
	if !s.IsLoggedIn() || !s.Expired(s.clock.Now()) {
		return false
	}
	s.log.Info("session expired")
	s.end("Session expired")
	return true
}

// Watch polls for expiry every interval until ctx is cancelled.
func (s *Session) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}
