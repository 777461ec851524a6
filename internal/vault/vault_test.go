package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
)

func openTestVault(t *testing.T) (*Vault, string) {
	t.Helper()
	keyFile := filepath.Join(t.TempDir(), "test.key")
	v, err := Open(logr.Discard(), keyFile)
	if err != nil {
		t.Fatalf("unexpected error opening vault: %v", err)
	}
	return v, keyFile
}

func TestOpen_GeneratesKey(t *testing.T) {
	_, keyFile := openTestVault(t)

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key file was not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected key file mode 0600, got %o", info.Mode().Perm())
	}
	if info.Size() != KeySize {
		t.Errorf("expected key size %d, got %d", KeySize, info.Size())
	}
}

func TestOpen_FixesDriftedPermissions(t *testing.T) {
	_, keyFile := openTestVault(t)

	if err := os.Chmod(keyFile, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(logr.Discard(), keyFile); err != nil {
		t.Fatalf("unexpected error reopening vault: %v", err)
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected permissions fixed to 0600, got %o", info.Mode().Perm())
	}
}

func TestOpen_RejectsBadKeyLength(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "short.key")
	if err := os.WriteFile(keyFile, []byte("too-short"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Open(logr.Discard(), keyFile)
	if !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption for bad key length, got %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v, _ := openTestVault(t)

	secrets := []string{"s", "my-api-key", "sp3c!al ch@rs üé", "a-much-longer-secret-value-0123456789"}
	for _, secret := range secrets {
		ciphertext, err := v.Encrypt(secret)
		if err != nil {
			t.Fatalf("encrypt %q: %v", secret, err)
		}
		if ciphertext == secret {
			t.Errorf("ciphertext equals plaintext for %q", secret)
		}
		plaintext, err := v.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("decrypt %q: %v", secret, err)
		}
		if plaintext != secret {
			t.Errorf("round trip mismatch: got %q, want %q", plaintext, secret)
		}
	}
}

func TestEncrypt_EmptyInput(t *testing.T) {
	v, _ := openTestVault(t)
	if _, err := v.Encrypt(""); !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption for empty input, got %v", err)
	}
}

func TestDecrypt_EmptyInput(t *testing.T) {
	v, _ := openTestVault(t)
	if _, err := v.Decrypt(""); !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption for empty input, got %v", err)
	}
}

func TestDecrypt_ForeignKeyFails(t *testing.T) {
	v1, _ := openTestVault(t)
	v2, _ := openTestVault(t)

	ciphertext, err := v1.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v2.Decrypt(ciphertext); !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption decrypting with a different key, got %v", err)
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	v, _ := openTestVault(t)

	ciphertext, err := v.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Decrypt("not base64!!"); !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption for malformed ciphertext, got %v", err)
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 'x'
	if _, err := v.Decrypt(string(tampered)); !errors.Is(err, ErrEncryption) {
		t.Fatalf("expected ErrEncryption for tampered ciphertext, got %v", err)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("ab"); got != "****" {
		t.Errorf("short secret: got %q", got)
	}
	if got := Mask("supersecretkey"); got != "su****ey" {
		t.Errorf("long secret: got %q", got)
	}
}
