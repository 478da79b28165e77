package schema

// Storage keys. Every value is a JSON document except LastActivityKey, which
// holds a stringified Unix millisecond timestamp.
const (
	UsersKey        = "users"
	ActivitiesKey   = "userActivities"
	CurrentUserKey  = "currentUser"
	LastActivityKey = "lastActivity"
)
