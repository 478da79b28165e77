package sdk

import "errors"

var (
	// ErrKeyNotFound is returned when a requested key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned when a write would grow the storage past its quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidKey is returned for empty keys or keys containing whitespace.
	ErrInvalidKey = errors.New("invalid key")
)

// --- Functional Interfaces (Interface Segregation) ---

// ItemReader defines the read operation for the storage.
type ItemReader interface {
	// GetItem returns the value stored under key, or ErrKeyNotFound.
	GetItem(key string) (string, error)
}

// ItemWriter defines the write and removal operations for the storage.
type ItemWriter interface {
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
}

// KeyEnumeration allows discovering stored keys.
type KeyEnumeration interface {
	Keys() ([]string, error)
}

// --- Composite Interfaces ---

// Storage is the key-value contract the user store persists into.
// Keys and values are strings, like a browser's local storage.
type Storage interface {
	ItemReader
	ItemWriter
	KeyEnumeration
}
