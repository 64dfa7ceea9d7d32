package pqc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
)

// EncryptionManager encrypts collection snapshots at rest under a single
// master Kyber/Dilithium key pair, set once via SetMasterKey. This is the
// multi-peer alternative to security.MemoryEncryption's passphrase path:
// a master key is distributed to every replica out-of-band (or over the
// network handshake in internal/network), not derived locally per-actor.
type EncryptionManager struct {
	mu        sync.RWMutex
	masterKey *PQCKeyPair
}

// NewEncryptionManager creates a new encryption manager
func NewEncryptionManager() *EncryptionManager {
	return &EncryptionManager{}
}

// SetMasterKey sets the master PQC key pair for encryption
func (em *EncryptionManager) SetMasterKey(keyPair *PQCKeyPair) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.masterKey = keyPair
}

// GetMasterKey returns the master key pair
func (em *EncryptionManager) GetMasterKey() *PQCKeyPair {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.masterKey
}

// EncryptData encrypts plaintext under the configured master key.
func (em *EncryptionManager) EncryptData(plaintext []byte) (string, error) {
	em.mu.RLock()
	keyPair := em.masterKey
	em.mu.RUnlock()

	if keyPair == nil {
		return "", fmt.Errorf("no master key set")
	}
	if !keyPair.IsActive() {
		return "", fmt.Errorf("key %s is not active", keyPair.ID)
	}

	ciphertext, err := keyPair.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt data: %w", err)
	}

	payload := map[string]interface{}{
		"key_id":     keyPair.ID,
		"algorithm":  "Kyber-768+AES-256-GCM",
		"ciphertext": base64.StdEncoding.EncodeToString(ciphertext),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	signature, err := keyPair.Sign(payloadBytes)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	encrypted := map[string]interface{}{
		"payload":   payload,
		"signature": base64.StdEncoding.EncodeToString(signature),
	}

	finalBytes, err := json.Marshal(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to marshal encrypted data: %w", err)
	}

	return base64.StdEncoding.EncodeToString(finalBytes), nil
}

// DecryptData decrypts data encrypted with EncryptData. It rejects
// ciphertext whose payload key_id doesn't match the configured master
// key, since that means it was never encrypted for this key pair.
func (em *EncryptionManager) DecryptData(encryptedData string) ([]byte, error) {
	encryptedBytes, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	var encrypted map[string]interface{}
	if err := json.Unmarshal(encryptedBytes, &encrypted); err != nil {
		return nil, fmt.Errorf("failed to unmarshal encrypted data: %w", err)
	}

	payloadInterface, ok := encrypted["payload"]
	if !ok {
		return nil, fmt.Errorf("missing payload in encrypted data")
	}

	signatureB64, ok := encrypted["signature"].(string)
	if !ok {
		return nil, fmt.Errorf("missing signature in encrypted data")
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}

	payloadBytes, err := json.Marshal(payloadInterface)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	keyID, ok := payload["key_id"].(string)
	if !ok {
		return nil, fmt.Errorf("missing key_id in payload")
	}

	ciphertextB64, ok := payload["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("missing ciphertext in payload")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	em.mu.RLock()
	keyPair := em.masterKey
	em.mu.RUnlock()

	if keyPair == nil || keyPair.ID != keyID {
		return nil, fmt.Errorf("key %s not found", keyID)
	}
	if !keyPair.IsActive() {
		return nil, fmt.Errorf("key %s is not active", keyID)
	}

	if !keyPair.Verify(payloadBytes, signature) {
		return nil, fmt.Errorf("signature verification failed")
	}

	plaintext, err := keyPair.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}

	return plaintext, nil
}
