// Package userstore keeps user records and their activity log in a
// key-value Storage.
//
// Store is the error-returning core. Manager wraps it with the boolean,
// never-failing contract the presentation layers rely on.
package userstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/pkg/schema"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

// DefaultAdminPassword is the password given to the bootstrap admin record.
const DefaultAdminPassword = "admin123"

var (
	// ErrUsernameRequired indicates an empty or blank username.
	ErrUsernameRequired = errors.New("userstore: username required")
	// ErrPasswordRequired indicates an empty password.
	ErrPasswordRequired = errors.New("userstore: password required")
	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("userstore: user already exists")
	// ErrUserNotFound indicates no record carries the username.
	ErrUserNotFound = errors.New("userstore: user not found")
	// ErrAdminProtected indicates an attempt to delete the admin record.
	ErrAdminProtected = errors.New("userstore: admin user cannot be deleted")
)

// IsValidation reports whether err is a rejected input rather than a storage failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUsernameRequired) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAdminProtected)
}

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	AdminPassword string
	Matcher       CredentialMatcher
	Clock         Clock
	Logger        logger.Logger
}

// Store owns the user and activity collections. The user list is reloaded
// from storage on every operation, so records written through the same
// storage by another process are seen and never overwritten with a stale
// copy. The cached list only answers reads while storage is unreadable.
type Store struct {
	mu            sync.Mutex
	storage       sdk.Storage
	users         []schema.UserRecord
	adminPassword string
	matcher       CredentialMatcher
	clock         Clock
	log           logger.Logger
}

// New constructs a store over storage. Nothing is read or written until
// Initialize is called.
func New(storage sdk.Storage, opts Options) *Store {
	s := &Store{
		storage:       storage,
		adminPassword: opts.AdminPassword,
		matcher:       opts.Matcher,
		clock:         opts.Clock,
		log:           opts.Logger,
	}
	if s.adminPassword == "" {
		s.adminPassword = DefaultAdminPassword
	}
	if s.matcher == nil {
		s.matcher = PlainMatcher{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.log == nil {
		s.log = logger.NewNoOpLogger()
	}
	s.log = s.log.With("component", "userstore")
	return s
}

// Storage returns the underlying storage.
func (s *Store) Storage() sdk.Storage {
	return s.storage
}

// Initialize loads the user collection and makes sure the admin record exists.
// Missing or corrupt stored data is treated as an empty collection. Any other
// read failure is returned and nothing is written.
// Calling it again reloads from storage and never duplicates the admin.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return err
	}
	return s.ensureAdminLocked()
}

// EnsureAdminExists adds the admin record when it is missing.
func (s *Store) EnsureAdminExists() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return err
	}
	return s.ensureAdminLocked()
}

func (s *Store) ensureAdminLocked() error {
	if s.indexLocked(schema.AdminUsername) >= 0 {
		return nil
	}

	password, err := s.matcher.Prepare(s.adminPassword)
	if err != nil {
		return fmt.Errorf("prepare admin password: %w", err)
	}

	s.users = append(s.users, schema.UserRecord{
		Username:  schema.AdminUsername,
		Password:  password,
		Role:      schema.RoleAdmin,
		CreatedAt: s.createdAt(),
	})
	if err := s.saveUsersLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return fmt.Errorf("save admin: %w", err)
	}
	s.log.Info("admin user created")
	return nil
}

// ValidateCredentials returns the first record whose username and password
// both match.
func (s *Store) ValidateCredentials(username, password string) (schema.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.viewLocked() {
		if u.Username == username && s.matcher.Match(u.Password, password) {
			return u, true
		}
	}
	return schema.UserRecord{}, false
}

// CreateUser adds a user with role "user". The username is trimmed before the
// uniqueness check.
func (s *Store) CreateUser(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return err
	}
	if s.indexLocked(username) >= 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	stored, err := s.matcher.Prepare(password)
	if err != nil {
		return fmt.Errorf("prepare password: %w", err)
	}

	s.users = append(s.users, schema.UserRecord{
		Username:  username,
		Password:  stored,
		Role:      schema.RoleUser,
		CreatedAt: s.createdAt(),
	})
	if err := s.saveUsersLocked(); err != nil {
		s.users = s.users[:len(s.users)-1]
		return fmt.Errorf("save users: %w", err)
	}

	if err := s.appendActivityLocked(schema.SystemActor, fmt.Sprintf("User %s created", username)); err != nil {
		s.log.Warn("failed to record creation", "username", username, "error", err)
	}
	s.log.Debug("user created", "username", username)
	return nil
}

// DeleteUser removes a non-admin user together with all of its activities.
func (s *Store) DeleteUser(username string) error {
	if username == schema.AdminUsername {
		return ErrAdminProtected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return err
	}
	idx := s.indexLocked(username)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	prev := s.users
	next := make([]schema.UserRecord, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)

	s.users = next
	if err := s.saveUsersLocked(); err != nil {
		s.users = prev
		return fmt.Errorf("save users: %w", err)
	}

	if err := s.removeActivitiesLocked(username); err != nil {
		s.log.Warn("failed to clear activities", "username", username, "error", err)
	}
	if err := s.appendActivityLocked(schema.SystemActor, fmt.Sprintf("User %s deleted and all data cleared", username)); err != nil {
		s.log.Warn("failed to record deletion", "username", username, "error", err)
	}
	s.log.Debug("user deleted", "username", username)
	return nil
}

// ListUsers returns every record except the admin, in insertion order.
func (s *Store) ListUsers() []schema.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.viewLocked()
	list := make([]schema.UserRecord, 0, len(users))
	for _, u := range users {
		if !u.IsAdmin() {
			list = append(list, u)
		}
	}
	return list
}

// User returns the record with the given username, the admin included.
func (s *Store) User(username string) (schema.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewLocked()
	if idx := s.indexLocked(username); idx >= 0 {
		return s.users[idx], true
	}
	return schema.UserRecord{}, false
}

// RecordActivity appends an entry stamped with the current time.
func (s *Store) RecordActivity(username, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendActivityLocked(username, description)
}

// ActivitiesFor returns every entry recorded for username, in storage order.
func (s *Store) ActivitiesFor(username string) ([]schema.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadActivitiesLocked()
	if err != nil {
		return nil, err
	}
	list := make([]schema.ActivityEntry, 0)
	for _, a := range all {
		if a.Username == username {
			list = append(list, a)
		}
	}
	return list, nil
}

// Activities returns the whole activity log.
func (s *Store) Activities() ([]schema.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadActivitiesLocked()
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = make([]schema.ActivityEntry, 0)
	}
	return all, nil
}

// ClearActivitiesFor drops every entry recorded for username.
func (s *Store) ClearActivitiesFor(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeActivitiesLocked(username)
}

// StorageUsage reports counts and serialized sizes of both collections.
func (s *Store) StorageUsage() (schema.StorageUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var usage schema.StorageUsage

	if err := s.syncLocked(); err != nil {
		return usage, err
	}
	usersSize, err := s.itemSizeLocked(schema.UsersKey)
	if err != nil {
		return usage, err
	}
	activitiesSize, err := s.itemSizeLocked(schema.ActivitiesKey)
	if err != nil {
		return usage, err
	}
	activities, err := s.loadActivitiesLocked()
	if err != nil {
		return usage, err
	}

	usage.Users = schema.CollectionUsage{Count: len(s.users), Size: usersSize}
	usage.Activities = schema.CollectionUsage{Count: len(activities), Size: activitiesSize}
	usage.TotalSize = usersSize + activitiesSize
	return usage, nil
}

// ClearAll erases both collections and the session markers, then
// re-initializes so the admin record exists again.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, key := range []string{schema.UsersKey, schema.ActivitiesKey, schema.CurrentUserKey, schema.LastActivityKey} {
		if err := s.storage.RemoveItem(key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}

	if err := s.syncLocked(); err != nil {
		return errors.Join(append(errs, err)...)
	}
	errs = append(errs, s.ensureAdminLocked())
	s.log.Info("all data cleared")
	return errors.Join(errs...)
}

// --- internals; every *Locked method MUST be called while holding s.mu ---

func (s *Store) indexLocked(username string) int {
	for i, u := range s.users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

func (s *Store) createdAt() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *Store) loadUsersLocked() ([]schema.UserRecord, error) {
	users, err := readCollection[schema.UserRecord](s.storage, schema.UsersKey)
	if errors.Is(err, errCorrupt) {
		s.log.Warn("discarding unreadable users", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

// syncLocked replaces the cached user list with the stored one. On a read
// failure the cache is left as it was.
func (s *Store) syncLocked() error {
	users, err := s.loadUsersLocked()
	if err != nil {
		return err
	}
	s.users = users
	return nil
}

// viewLocked syncs for a read and falls back to the cached list when storage
// cannot be read.
func (s *Store) viewLocked() []schema.UserRecord {
	if err := s.syncLocked(); err != nil {
		s.log.Warn("serving cached users", "error", err)
	}
	return s.users
}

func (s *Store) saveUsersLocked() error {
	users := s.users
	if users == nil {
		users = make([]schema.UserRecord, 0)
	}
	_, err := sdk.SetJSON(s.storage, schema.UsersKey, users)
	return err
}

func (s *Store) loadActivitiesLocked() ([]schema.ActivityEntry, error) {
	list, err := readCollection[schema.ActivityEntry](s.storage, schema.ActivitiesKey)
	if errors.Is(err, errCorrupt) {
		s.log.Warn("discarding unreadable activities", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	return list, nil
}

func (s *Store) appendActivityLocked(username, description string) error {
	list, err := s.loadActivitiesLocked()
	if err != nil {
		return err
	}
	list = append(list, schema.ActivityEntry{
		Username:    username,
		Description: description,
		Timestamp:   s.clock.Now().Format(schema.ActivityTimeLayout),
	})
	if _, err := sdk.SetJSON(s.storage, schema.ActivitiesKey, list); err != nil {
		return fmt.Errorf("save activities: %w", err)
	}
	return nil
}

func (s *Store) removeActivitiesLocked(username string) error {
	list, err := s.loadActivitiesLocked()
	if err != nil {
		return err
	}
	kept := make([]schema.ActivityEntry, 0, len(list))
	for _, a := range list {
		if a.Username != username {
			kept = append(kept, a)
		}
	}
	if _, err := sdk.SetJSON(s.storage, schema.ActivitiesKey, kept); err != nil {
		return fmt.Errorf("save activities: %w", err)
	}
	return nil
}

func (s *Store) itemSizeLocked(key string) (int, error) {
	raw, err := s.storage.GetItem(key)
	if errors.Is(err, sdk.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return len(raw), nil
}

// errCorrupt marks a stored collection that does not parse.
var errCorrupt = errors.New("corrupt collection")

// readCollection loads a JSON array stored under key. A missing key yields an
// empty collection; a value that does not parse is reported as errCorrupt.
func readCollection[T any](storage sdk.ItemReader, key string) ([]T, error) {
	list, err := sdk.GetJSON[[]T](storage, key)
	if err == nil {
		return list, nil
	}
	if errors.Is(err, sdk.ErrKeyNotFound) {
		return nil, nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return nil, fmt.Errorf("%w %s: %v", errCorrupt, key, err)
	}
	return nil, err
}
