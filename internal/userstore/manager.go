package userstore

import (
	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/pkg/schema"
)

// Manager is the boundary over Store. Its operations never return errors:
// failures are logged and reported as false or as empty collections.
type Manager struct {
	store *Store
	log   logger.Logger
}

// NewManager wraps store. A nil logger discards output.
func NewManager(store *Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Manager{store: store, log: log.With("component", "user-manager")}
}

func (m *Manager) report(op string, err error, args ...any) bool {
	if err == nil {
		return true
	}
	args = append(args, "error", err)
	if IsValidation(err) {
		m.log.Info(op+" rejected", args...)
	} else {
		m.log.Error(op+" failed", args...)
	}
	return false
}

func (m *Manager) Initialize() bool {
	return m.report("initialize", m.store.Initialize())
}

func (m *Manager) ValidateCredentials(username, password string) (schema.UserRecord, bool) {
	return m.store.ValidateCredentials(username, password)
}

func (m *Manager) CreateUser(username, password string) bool {
	return m.report("create user", m.store.CreateUser(username, password), "username", username)
}

func (m *Manager) DeleteUser(username string) bool {
	return m.report("delete user", m.store.DeleteUser(username), "username", username)
}

func (m *Manager) ListUsers() []schema.UserRecord {
	return m.store.ListUsers()
}

func (m *Manager) User(username string) (schema.UserRecord, bool) {
	return m.store.User(username)
}

func (m *Manager) RecordActivity(username, description string) bool {
	return m.report("record activity", m.store.RecordActivity(username, description), "username", username)
}

func (m *Manager) ActivitiesFor(username string) []schema.ActivityEntry {
	list, err := m.store.ActivitiesFor(username)
	if !m.report("load activities", err, "username", username) {
		return []schema.ActivityEntry{}
	}
	return list
}

func (m *Manager) ClearActivitiesFor(username string) bool {
	return m.report("clear activities", m.store.ClearActivitiesFor(username), "username", username)
}

func (m *Manager) StorageUsage() schema.StorageUsage {
	usage, err := m.store.StorageUsage()
	if !m.report("storage usage", err) {
		return schema.StorageUsage{}
	}
	return usage
}

func (m *Manager) ClearAll() bool {
	return m.report("clear all", m.store.ClearAll())
}
