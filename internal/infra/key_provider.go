package infra

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	keyFileName = "webmon.key"
	keySize     = 32 // SQLCipher raw key
)

// FileKeyProvider keeps the store key in a 0600 file inside the data dir.
// The CLI and the daemon may both open the store on first run, so the file
// is created exclusively and whoever loses the race reads the winner's key.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// Path returns the key file path.
func (p *FileKeyProvider) Path() string {
	return p.keyPath
}

// GetKey reads and validates the key. Surrounding whitespace is ignored.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", p.keyPath, err)
	}
	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", p.keyPath, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size in %s: got %d, want %d", p.keyPath, len(key), keySize)
	}
	return key, nil
}

// StoreKey creates the key file. It never overwrites an existing key, since
// that would make the encrypted store unreadable; it fails with an error
// matching os.ErrExist instead.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	f, err := os.OpenFile(p.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create key %s: %w", p.keyPath, err)
	}
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(key)); err != nil {
		f.Close()
		os.Remove(p.keyPath)
		return fmt.Errorf("write key %s: %w", p.keyPath, err)
	}
	return f.Close()
}

// KeyExists reports whether a key file is present.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// GenerateKey returns a random SQLCipher key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the stored key, creating one on first run.
// A present but unreadable key is an error, never a reason to replace it.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	err = provider.StoreKey(key)
	if errors.Is(err, os.ErrExist) {
		// Another process created it first.
		return provider.GetKey()
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
