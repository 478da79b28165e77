package engine

import (
	"fmt"

	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

// Migrate copies every key from a source storage into a destination storage.
// This works for:
// - Embedded -> Remote (The "Upgrade")
// - Remote -> Embedded (The "Backup/Offline")
// - File -> Redis or SQL when switching backends
//
// It returns the number of keys copied.
func Migrate(src sdk.Storage, dst sdk.Storage) (int, error) {
	keys, err := src.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	copied := 0
	for _, k := range keys {
		val, err := src.GetItem(k)
		if err != nil {
			return copied, fmt.Errorf("failed to read key %s: %w", k, err)
		}
		if err := dst.SetItem(k, val); err != nil {
			return copied, fmt.Errorf("failed to set key %s in destination: %w", k, err)
		}
		copied++
	}

	return copied, nil
}
