// Package schema defines the data structures shared by the store, its
// transports and its clients.
package schema

import "time"

// Role is the access level of a user record.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// AdminUsername is the reserved username of the bootstrap administrator.
// A record with this username always exists and can never be deleted.
const AdminUsername = "admin"

// SystemActor is the username recorded on activities the store itself emits.
const SystemActor = "system"

// ActivityTimeLayout renders activity timestamps the way a en-US locale
// prints a date and time, e.g. "10/17/2026, 3:04:05 PM".
const ActivityTimeLayout = "1/2/2006, 3:04:05 PM"

// UserRecord represents a user identity.
// It is stored, together with every other record, as one JSON array under the
// "users" key.
type UserRecord struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAdmin reports whether the record is the reserved administrator.
func (u UserRecord) IsAdmin() bool {
	return u.Username == AdminUsername
}

// ActivityEntry represents one line of a user's activity log.
type ActivityEntry struct {
	Username    string `json:"username"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// CollectionUsage describes one serialized collection.
type CollectionUsage struct {
	Count int `json:"count"`
	Size  int `json:"size"`
}

// StorageUsage reports how much of the storage each collection occupies.
// Sizes are byte lengths of the serialized values as they are held in storage.
type StorageUsage struct {
	Users      CollectionUsage `json:"users"`
	Activities CollectionUsage `json:"activities"`
	TotalSize  int             `json:"totalSize"`
}
