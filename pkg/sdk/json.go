package sdk

import (
	"encoding/json"
	"strings"
)

// --- Generics Support ---

// GetJSON retrieves the value under key and unmarshals it into T.
// A missing key returns the zero value of T together with ErrKeyNotFound.
func GetJSON[T any](s ItemReader, key string) (T, error) {
	var target T
	raw, err := s.GetItem(key)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal([]byte(raw), &target)
	return target, err
}

// SetJSON marshals val and stores it under key.
// It returns the number of bytes written so callers can report usage.
func SetJSON[T any](s ItemWriter, key string, val T) (int, error) {
	bytes, err := json.Marshal(val)
	if err != nil {
		return 0, err
	}
	if err := s.SetItem(key, string(bytes)); err != nil {
		return 0, err
	}
	return len(bytes), nil
}

// ValidKey reports whether key can be used with every backend and the TCP
// protocol.
func ValidKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, " \t\r\n")
}
