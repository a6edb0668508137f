package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	fieldKeyBytes   = 32
	fieldNonceBytes = 12
)

// ErrDecryptionFailed indicates the ciphertext is malformed or failed
// authentication. Callers must not substitute plaintext; display paths may
// render DecryptionFailedSentinel instead.
var ErrDecryptionFailed = errors.New("field decryption failed")

// DecryptionFailedSentinel is the display-only replacement for a field that
// could not be decrypted. It must never be re-encrypted or persisted.
const DecryptionFailedSentinel = "[Decryption Failed]"

// FieldCipher envelope-encrypts a single text field with AES-256-GCM. Every
// Encrypt call draws a fresh random nonce which is prepended to the
// ciphertext; the whole blob is base64 encoded for storage in a text column.
//
// The master key is a configured string padded or truncated to 32 bytes.
// That is a known weakness of this design: a memorable passphrase is not
// uniform key material, and a production deployment should derive the key
// through a KDF or an external KMS. Loss of the master key makes existing
// ciphertext permanently unrecoverable.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher builds a cipher from the configured master key string.
func NewFieldCipher(masterKey string) (*FieldCipher, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("field cipher: master key is required")
	}

	key := make([]byte, fieldKeyBytes)
	copy(key, []byte(masterKey))

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: init aes: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: init gcm: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns the
// base64-encoded nonce-prefixed blob. Empty input short-circuits to empty
// output without invoking the cipher.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, fieldNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("field cipher: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, len(nonce)+len(sealed))
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt splits the blob into nonce and ciphertext+tag and opens it.
// Malformed input or an authentication failure yields ErrDecryptionFailed.
func (c *FieldCipher) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	if len(raw) <= fieldNonceBytes {
		return "", ErrDecryptionFailed
	}

	nonce := raw[:fieldNonceBytes]
	sealed := raw[fieldNonceBytes:]

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
