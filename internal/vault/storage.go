package vault

import (
	"fmt"

	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

// Storage encrypts every value before handing it to the wrapped storage and
// decrypts on the way back. Keys stay in clear text so they can be listed.
type Storage struct {
	inner     sdk.Storage
	masterKey []byte
}

// Wrap returns an encrypting view of inner.
func Wrap(inner sdk.Storage, masterKey []byte) *Storage {
	return &Storage{inner: inner, masterKey: masterKey}
}

var _ sdk.Storage = (*Storage)(nil)

func (v *Storage) GetItem(key string) (string, error) {
	ciphertext, err := v.inner.GetItem(key)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(ciphertext, v.masterKey)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", key, err)
	}
	return plaintext, nil
}

func (v *Storage) SetItem(key, value string) error {
	ciphertext, err := Encrypt(value, v.masterKey)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	return v.inner.SetItem(key, ciphertext)
}

func (v *Storage) RemoveItem(key string) error {
	return v.inner.RemoveItem(key)
}

func (v *Storage) Keys() ([]string, error) {
	return v.inner.Keys()
}
