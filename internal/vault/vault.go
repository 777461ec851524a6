package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the secretbox symmetric key length in bytes.
const KeySize = 32

const nonceSize = 24

// ErrEncryption marks any vault failure: bad key material, empty
// input, or a ciphertext that does not authenticate.
var ErrEncryption = errors.New("vault: encryption error")

// Vault encrypts and decrypts secrets with a key loaded from (or
// generated into) a key file. Key rotation is not supported; rotating
// requires re-encrypting every stored secret as an offline migration.
type Vault struct {
	key [KeySize]byte
	log logr.Logger
}

// Open loads the key from keyFile, generating a new one if the file
// does not exist. File permissions are forced back to 0600 on every
// load. A key of the wrong length is fatal.
func Open(log logr.Logger, keyFile string) (*Vault, error) {
	v := &Vault{log: log}

	raw, err := os.ReadFile(keyFile)
	switch {
	case err == nil:
		info, statErr := os.Stat(keyFile)
		if statErr == nil && info.Mode().Perm() != 0o600 {
			if chmodErr := os.Chmod(keyFile, 0o600); chmodErr != nil {
				return nil, fmt.Errorf("fix key file permissions: %w", chmodErr)
			}
			log.Info("fixed encryption key file permissions", "path", keyFile)
		}
	case os.IsNotExist(err):
		raw = make([]byte, KeySize)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate encryption key: %w", err)
		}
		if dir := filepath.Dir(keyFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create key directory: %w", err)
			}
		}
		if err := os.WriteFile(keyFile, raw, 0o600); err != nil {
			return nil, fmt.Errorf("write encryption key: %w", err)
		}
		log.Info("generated new encryption key", "path", keyFile)
	default:
		return nil, fmt.Errorf("read encryption key: %w", err)
	}

	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: invalid key length %d (expected %d)", ErrEncryption, len(raw), KeySize)
	}
	copy(v.key[:], raw)
	return v, nil
}

// Encrypt seals plaintext and returns a base64 string carrying the
// nonce and ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: cannot encrypt empty input", ErrEncryption)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign ciphertext fails
// authentication and returns ErrEncryption.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("%w: cannot decrypt empty input", ErrEncryption)
	}

	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrEncryption, err)
	}
	if len(sealed) <= nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryption)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", fmt.Errorf("%w: decryption failed", ErrEncryption)
	}
	return string(plaintext), nil
}

// Mask renders a secret safe for log output.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}
