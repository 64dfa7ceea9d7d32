package pqc

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/sign"
)

// PQCKeyPair represents a complete PQC key pair with both Kyber and
// Dilithium keys. It is kept in memory only for the lifetime of the
// process that generated or was handed it; this repo never serializes
// one to disk or the wire (the Kyber keys encrypt storage.FileStorage
// snapshots locally, and the Dilithium keys sign network.Network
// handshake identities, but neither path ships a key pair itself).
type PQCKeyPair struct {
	ID        string
	Name      string
	Purpose   string // encryption, signature, kex
	Algorithm string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Status    string // active, rotated, revoked, expired

	KyberPublicKey  kem.PublicKey
	KyberPrivateKey kem.PrivateKey

	DilithiumPublicKey  sign.PublicKey
	DilithiumPrivateKey sign.PrivateKey
}

// GeneratePQCKeyPair generates a new PQC key pair with both Kyber and Dilithium keys
func GeneratePQCKeyPair(name, purpose string) (*PQCKeyPair, error) {
	kyberPair, err := GenerateKyberKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Kyber keys: %w", err)
	}

	dilithiumPair, err := GenerateDilithiumKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Dilithium keys: %w", err)
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}
	id := fmt.Sprintf("%x", idBytes)

	return &PQCKeyPair{
		ID:                  id,
		Name:                name,
		Purpose:             purpose,
		Algorithm:           "Kyber-768+Dilithium-3",
		CreatedAt:           time.Now(),
		Status:              "active",
		KyberPublicKey:      kyberPair.PublicKey,
		KyberPrivateKey:     kyberPair.PrivateKey,
		DilithiumPublicKey:  dilithiumPair.PublicKey,
		DilithiumPrivateKey: dilithiumPair.PrivateKey,
	}, nil
}

// Encrypt encrypts data using the Kyber public key
func (kp *PQCKeyPair) Encrypt(plaintext []byte) ([]byte, error) {
	if kp.KyberPublicKey == nil {
		return nil, fmt.Errorf("no Kyber public key available")
	}
	return KyberEncrypt(kp.KyberPublicKey, plaintext)
}

// Decrypt decrypts data using the Kyber private key
func (kp *PQCKeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	if kp.KyberPrivateKey == nil {
		return nil, fmt.Errorf("no Kyber private key available")
	}
	return KyberDecrypt(kp.KyberPrivateKey, ciphertext)
}

// Sign signs data using the Dilithium private key
func (kp *PQCKeyPair) Sign(message []byte) ([]byte, error) {
	if kp.DilithiumPrivateKey == nil {
		return nil, fmt.Errorf("no Dilithium private key available")
	}
	return DilithiumSign(kp.DilithiumPrivateKey, message)
}

// Verify verifies a signature using the Dilithium public key
func (kp *PQCKeyPair) Verify(message []byte, signature []byte) bool {
	if kp.DilithiumPublicKey == nil {
		return false
	}
	return DilithiumVerify(kp.DilithiumPublicKey, message, signature)
}

// IsExpired checks if the key pair has expired
func (kp *PQCKeyPair) IsExpired() bool {
	if kp.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*kp.ExpiresAt)
}

// IsActive checks if the key pair is active and not expired
func (kp *PQCKeyPair) IsActive() bool {
	return kp.Status == "active" && !kp.IsExpired()
}
