package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/celerix-dev/celerix-users/internal/engine"
	"github.com/celerix-dev/celerix-users/internal/userstore"
	"github.com/celerix-dev/celerix-users/pkg/schema"
)

var testKey = []byte("thisis32byteslongsecretkey123456") // 32 bytes for AES-256

func TestEncryptDecrypt(t *testing.T) {
	plaintext := `[{"username":"admin","password":"admin123"}]`

	ciphertext, err := Encrypt(plaintext, testKey)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	if ciphertext == plaintext {
		t.Fatal("Ciphertext should not be equal to plaintext")
	}

	decrypted, err := Decrypt(ciphertext, testKey)
	if err != nil {
		t.Fatalf("Decryption failed: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("Expected %s, got %s", plaintext, decrypted)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	other := []byte("another32byteslongsecretkey65432")

	ciphertext, err := Encrypt("Secret message", testKey)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	if _, err := Decrypt(ciphertext, other); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("Expected ErrDecrypt, got %v", err)
	}
}

func TestInvalidKeySize(t *testing.T) {
	invalidKey := []byte("shortkey")

	if _, err := Encrypt("test", invalidKey); err == nil {
		t.Fatal("Encryption should fail with invalid key size")
	}

	if _, err := Decrypt("0123456789abcdef", invalidKey); err == nil {
		t.Fatal("Decryption should fail with invalid key size")
	}
}

func TestDecryptMalformedHex(t *testing.T) {
	if _, err := Decrypt("not-hex", testKey); err == nil {
		t.Fatal("Decryption should fail with malformed hex")
	}
}

func TestDecryptTooShort(t *testing.T) {
	// AES-GCM nonce is 12 bytes, so 3 bytes is definitely too short.
	if _, err := Decrypt("abcdef", testKey); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("Expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", KeySize)
	key, err := ParseKey(hexKey)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("Expected %d bytes, got %d", KeySize, len(key))
	}

	if _, err := ParseKey("abcd"); err == nil {
		t.Error("ParseKey should reject short keys")
	}
	if _, err := ParseKey(strings.Repeat("zz", KeySize)); err == nil {
		t.Error("ParseKey should reject non-hex keys")
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("Failed to generate self-signed cert: %v", err)
	}

	if len(cert.Certificate) == 0 {
		t.Fatal("Generated certificate is empty")
	}

	if cert.PrivateKey == nil {
		t.Fatal("Generated private key is nil")
	}
}

func TestStorage_EncryptsValues(t *testing.T) {
	inner := engine.NewMemStore("vault", nil, nil, 0)
	v := Wrap(inner, testKey)

	store := userstore.New(v, userstore.Options{})
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := store.CreateUser("bob", "secret"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	raw, err := inner.GetItem(schema.UsersKey)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if strings.Contains(raw, "bob") || strings.Contains(raw, "secret") {
		t.Error("Vault value should be encrypted in the underlying storage")
	}

	if _, ok := store.ValidateCredentials("bob", "secret"); !ok {
		t.Error("Credentials should validate through the vault")
	}

	// A fresh store over the same encrypted data sees the same users
	reloaded := userstore.New(Wrap(inner, testKey), userstore.Options{})
	if err := reloaded.Initialize(); err != nil {
		t.Fatalf("Initialize on reload failed: %v", err)
	}
	if users := reloaded.ListUsers(); len(users) != 1 || users[0].Username != "bob" {
		t.Errorf("Expected [bob] after reload, got %v", users)
	}

	keys, _ := v.Keys()
	if len(keys) != 2 {
		t.Errorf("Expected users and userActivities keys, got %v", keys)
	}

	if err := v.RemoveItem(schema.ActivitiesKey); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
}

func TestStorage_WrongKey(t *testing.T) {
	inner := engine.NewMemStore("vault", nil, nil, 0)
	if err := Wrap(inner, testKey).SetItem("users", "[]"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	other := Wrap(inner, []byte("another32byteslongsecretkey65432"))
	if _, err := other.GetItem("users"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Expected ErrDecrypt, got %v", err)
	}
}
