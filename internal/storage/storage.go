// Package storage persists a collection's CRDT state to disk: one
// gob-encoded, optionally PQC-encrypted Map snapshot per collection.
// Snapshot bytes are opaque here — internal/resolver is what knows how to
// encode and decode a *crdt.Map into them.
package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crdtkit/mapcrdt/internal/crypto/pqc"
	"github.com/crdtkit/mapcrdt/internal/security"
)

// Storage persists and retrieves a collection's encoded snapshot bytes.
// It knows nothing about the Map CRDT's internal shape; resolver.EncodeSnapshot
// / resolver.MergeRemote produce and consume the []byte it stores.
type Storage interface {
	SaveSnapshot(collection string, data []byte) error
	LoadSnapshot(collection string) ([]byte, error)
	DeleteSnapshot(collection string) error
	ListCollections() ([]string, error)
}

// FileStorage implements Storage on the local filesystem, one file per
// collection under baseDir. Sensitive collections (see IsEncryptedCollection)
// are encrypted at rest with the PQC-derived master key, applied to the
// whole snapshot blob since a Map snapshot has no document-shaped fields
// to pick apart.
type FileStorage struct {
	baseDir       string
	actor         string
	encryptionMgr *pqc.EncryptionManager
	passphraseEnc *security.MemoryEncryption
	passphraseKey []byte
	mu            sync.RWMutex
}

// snapshotExt is the file extension a collection snapshot is stored under.
const snapshotExt = ".snap"

// passphraseSaltFile holds the PBKDF2 salt paired with the passphrase key
// set by SetPassphrase, so the key can be re-derived on process restart.
const passphraseSaltFile = ".passphrase.salt"

// NewFileStorage opens baseDir as a snapshot store for actor's replica.
// actor binds every passphrase-derived key and ciphertext produced here
// (see security.MemoryEncryption), so two replicas sharing a passphrase
// still can't read each other's encrypted snapshots.
func NewFileStorage(baseDir, actor string) *FileStorage {
	os.MkdirAll(baseDir, 0755)
	return &FileStorage{
		baseDir:       baseDir,
		actor:         actor,
		encryptionMgr: pqc.NewEncryptionManager(),
		passphraseEnc: security.NewMemoryEncryption(),
	}
}

// SetPassphrase derives an encryption key from secret via PBKDF2, persisting
// its salt under baseDir so the same key is reproducible across restarts.
// This is the single-operator alternative to SetMasterKey's PQC key pair: a
// collection is PBKDF2/AES-GCM-encrypted if a passphrase key is set and no
// PQC master key is configured, since the PQC path takes precedence for
// multi-peer deployments where key distribution already goes through the
// network handshake.
func (fs *FileStorage) SetPassphrase(secret string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	saltPath := filepath.Join(fs.baseDir, passphraseSaltFile)
	var salt []byte
	if existing, err := os.ReadFile(saltPath); err == nil {
		salt, err = base64.StdEncoding.DecodeString(string(existing))
		if err != nil {
			return fmt.Errorf("storage: decode stored passphrase salt: %w", err)
		}
	} else {
		generated, err := fs.passphraseEnc.GenerateSalt()
		if err != nil {
			return fmt.Errorf("storage: generate passphrase salt: %w", err)
		}
		salt = generated
		if err := os.WriteFile(saltPath, []byte(base64.StdEncoding.EncodeToString(salt)), 0600); err != nil {
			return fmt.Errorf("storage: persist passphrase salt: %w", err)
		}
	}

	fs.passphraseKey = fs.passphraseEnc.DeriveKey(fs.actor, secret, salt)
	return nil
}

func (fs *FileStorage) snapshotPath(collection string) string {
	return filepath.Join(fs.baseDir, collection+snapshotExt)
}

// SetMasterKey sets the master PQC key used to encrypt snapshots at rest.
func (fs *FileStorage) SetMasterKey(keyPair *pqc.PQCKeyPair) {
	fs.encryptionMgr.SetMasterKey(keyPair)
}

// IsEncryptedCollection reports whether collection holds data sensitive
// enough to warrant encryption at rest. Callers that handle credentials,
// session tokens, or access-control state should name their collection
// accordingly.
func (fs *FileStorage) IsEncryptedCollection(collection string) bool {
	sensitiveCollections := []string{
		"credentials",
		"sessions",
		"access_control",
	}
	for _, sc := range sensitiveCollections {
		if collection == sc {
			return true
		}
	}
	return false
}

// SaveSnapshot writes data (a resolver.EncodeSnapshot result) to disk,
// encrypting it first if the collection is sensitive and a master key is
// configured.
func (fs *FileStorage) SaveSnapshot(collection string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := data
	switch {
	case fs.IsEncryptedCollection(collection) && fs.encryptionMgr.GetMasterKey() != nil:
		encrypted, err := fs.encryptionMgr.EncryptData(data)
		if err != nil {
			return fmt.Errorf("storage: encrypt snapshot for %s: %w", collection, err)
		}
		out = []byte(encryptedMarker + encrypted)
	case fs.IsEncryptedCollection(collection) && fs.passphraseKey != nil:
		ciphertext, err := fs.passphraseEnc.EncryptMemory(data, fs.passphraseKey, fs.actor)
		if err != nil {
			return fmt.Errorf("storage: encrypt snapshot for %s: %w", collection, err)
		}
		out = []byte(passphraseMarker + base64.StdEncoding.EncodeToString(ciphertext))
	}

	return os.WriteFile(fs.snapshotPath(collection), out, 0644)
}

// encryptedMarker prefixes an on-disk snapshot that holds an
// EncryptData-produced base64 ciphertext rather than raw gob bytes, so
// LoadSnapshot knows whether to decrypt before handing bytes back.
const encryptedMarker = "MAPCRDT-PQC-ENC:"

// passphraseMarker prefixes an on-disk snapshot encrypted with the
// PBKDF2-derived key from SetPassphrase rather than a PQC master key.
const passphraseMarker = "MAPCRDT-PBKDF2-ENC:"

// LoadSnapshot reads and, if necessary, decrypts collection's snapshot.
// A missing snapshot is not an error: it returns (nil, nil), matching a
// freshly created, never-synced collection.
func (fs *FileStorage) LoadSnapshot(collection string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.snapshotPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) >= len(encryptedMarker) && string(data[:len(encryptedMarker)]) == encryptedMarker {
		if fs.encryptionMgr.GetMasterKey() == nil {
			return nil, fmt.Errorf("storage: snapshot for %s is encrypted but no master key is set", collection)
		}
		plain, err := fs.encryptionMgr.DecryptData(string(data[len(encryptedMarker):]))
		if err != nil {
			return nil, fmt.Errorf("storage: decrypt snapshot for %s: %w", collection, err)
		}
		return plain, nil
	}

	if len(data) >= len(passphraseMarker) && string(data[:len(passphraseMarker)]) == passphraseMarker {
		if fs.passphraseKey == nil {
			return nil, fmt.Errorf("storage: snapshot for %s is passphrase-encrypted but no passphrase is set", collection)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(string(data[len(passphraseMarker):]))
		if err != nil {
			return nil, fmt.Errorf("storage: decode passphrase ciphertext for %s: %w", collection, err)
		}
		plain, err := fs.passphraseEnc.DecryptMemory(ciphertext, fs.passphraseKey, fs.actor)
		if err != nil {
			return nil, fmt.Errorf("storage: decrypt snapshot for %s: %w", collection, err)
		}
		return plain, nil
	}

	return data, nil
}

// DeleteSnapshot removes collection's on-disk snapshot, if any.
func (fs *FileStorage) DeleteSnapshot(collection string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.snapshotPath(collection)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListCollections returns the name of every collection with a snapshot on
// disk.
func (fs *FileStorage) ListCollections() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == snapshotExt {
			names = append(names, e.Name()[:len(e.Name())-len(snapshotExt)])
		}
	}
	return names, nil
}
