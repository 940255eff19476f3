package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// KeyEnv holds a hex encoded master key that takes precedence over the key file.
const KeyEnv = "LOGPILE_MASTER_KEY"

// KeySize is the AES-256 key length.
const KeySize = 32

var (
	ErrKeyLength       = errors.New("master key must be 32 bytes")
	ErrCiphertextShort = errors.New("ciphertext too short")
)

// LoadKey obtains the master key from the environment, the key file, or
// generates a new one and saves it to keyPath.
// generated is true when a new key was written.
func LoadKey(keyPath string) (key []byte, generated bool, err error) {
	// 1. Check Environmental Variable
	if envKey := os.Getenv(KeyEnv); envKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(envKey))
		if err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", KeyEnv, err)
		}
		if len(key) != KeySize {
			return nil, false, fmt.Errorf("%s: %w", KeyEnv, ErrKeyLength)
		}
		return key, false, nil
	}

	// 2. Check Key File
	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, fmt.Errorf("decode key file %s: %w", keyPath, err)
		}
		if len(key) != KeySize {
			return nil, false, fmt.Errorf("key file %s: %w", keyPath, ErrKeyLength)
		}
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	// 3. Generate New Key
	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random key: %w", err)
	}
	if dir := filepath.Dir(keyPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, false, fmt.Errorf("create key dir: %w", err)
		}
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save master key to %s: %w", keyPath, err)
	}
	return key, true, nil
}

// Cipher seals and opens blocks with AES-GCM.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: gcm}, nil
}

// Seal encrypts plaintext and returns Nonce + Ciphertext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrCiphertextShort
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
