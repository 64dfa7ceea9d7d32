// Package security implements the passphrase-based alternative to the PQC
// master-key path in internal/crypto/pqc: a single-operator deployment
// with no peer network to distribute a PQC key pair over can still encrypt
// collection snapshots at rest from an operator-supplied passphrase.
//
// Every derived key and every ciphertext is bound to the replica Actor
// identity that produced it (internal/vclock.Actor's string form, as used
// by every collection in this repo): the same passphrase yields a
// different key per actor, and AES-GCM authenticates the actor as
// additional data, so a snapshot encrypted under one actor's identity
// fails to decrypt under another's even with the correct passphrase and
// key. This mirrors the per-actor isolation the CRDT core itself relies
// on for causal tracking.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

type MemoryEncryption struct {
	iterations int
	keyLength  int
}

func NewMemoryEncryption() *MemoryEncryption {
	return &MemoryEncryption{
		iterations: 100000,
		keyLength:  32,
	}
}

// DeriveKey derives an encryption key from userSecret, scoped to actor so
// that the same passphrase and salt produce a distinct key per replica
// identity (actor is folded into the PBKDF2 password material, not just
// the salt, so a caller can't recover another actor's key even knowing
// the salt).
func (m *MemoryEncryption) DeriveKey(actor, userSecret string, salt []byte) []byte {
	return pbkdf2.Key(
		[]byte(actor+"\x00"+userSecret),
		salt,
		m.iterations,
		m.keyLength,
		sha256.New,
	)
}

// EncryptMemory encrypts data before storage, binding the ciphertext to
// actor as AES-GCM additional authenticated data: decrypting with a
// different actor fails the GCM tag check even if key and nonce matched.
func (m *MemoryEncryption) EncryptMemory(data []byte, key []byte, actor string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, data, []byte(actor))
	return ciphertext, nil
}

// DecryptMemory decrypts data encrypted by EncryptMemory. actor must match
// the actor passed to EncryptMemory or decryption fails.
func (m *MemoryEncryption) DecryptMemory(encrypted []byte, key []byte, actor string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(actor))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateSalt generates a random salt for key derivation
func (m *MemoryEncryption) GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// EncodeKey encodes a key to base64 for storage
func (m *MemoryEncryption) EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64-encoded key
func (m *MemoryEncryption) DecodeKey(encoded string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(encoded)
}
