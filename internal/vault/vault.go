// Package vault encrypts OAuth token material before it touches the database.
//
// AES-256-GCM with a key derived from the configured session secret.
// Blob layout: nonce (12) || auth tag (16) || ciphertext, base64-encoded so the
// value can live in a TEXT column. A fresh random nonce is drawn per call;
// decryption verifies the tag before returning anything.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// gcmNonceSize and gcmTagSize are fixed by the blob layout. Changing either
// invalidates every stored token.
const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// ErrDecryption is returned when a blob is malformed or its authentication tag
// does not verify (wrong secret, corruption, tampering). Callers use errors.Is
// to trigger the delete-and-reauthorize recovery path.
var ErrDecryption = errors.New("token decryption failed")

// Vault holds the derived symmetric key. Safe for concurrent use.
type Vault struct {
	key [32]byte
}

// New derives a 256-bit key from the secret via SHA-256, so secrets of any
// length work. The secret must be non-empty -- plaintext storage is not an option.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("vault secret must not be empty")
	}
	return &Vault{key: sha256.Sum256([]byte(secret))}, nil
}

// Encrypt seals plaintext into an opaque base64 blob.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Seal returns ciphertext || tag; the blob stores nonce || tag || ciphertext.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	blob := make([]byte, 0, gcmNonceSize+gcmTagSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. Any failure -- bad base64, short
// blob, tag mismatch -- comes back wrapped in ErrDecryption; the blob contents
// are never partially returned.
func (v *Vault) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryption)
	}
	if len(blob) < gcmNonceSize+gcmTagSize {
		return "", fmt.Errorf("%w: blob too short", ErrDecryption)
	}

	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	nonce := blob[:gcmNonceSize]
	tag := blob[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ct := blob[gcmNonceSize+gcmTagSize:]

	// gcm.Open expects ciphertext || tag.
	sealed := make([]byte, 0, len(ct)+gcmTagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}

func (v *Vault) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
