package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16
	keySize  = chacha20poly1305.KeySize

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrCorrupt indicates the sealed credential file could not be opened with the configured secret.
var ErrCorrupt = errors.New("credential file corrupt or secret mismatch")

// FileStore seals the bearer token with XChaCha20-Poly1305 under a scrypt-derived key.
// File layout: salt | nonce | ciphertext.
type FileStore struct {
	path   string
	secret []byte

	mu sync.Mutex
}

// NewFileStore returns a store persisting to path. When passphrase is empty a random key file is
// created next to path (mode 0600) and used as the secret instead.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("credential path must be provided")
	}

	secret := []byte(passphrase)
	if passphrase == "" {
		key, err := loadOrCreateKeyFile(path + ".key")
		if err != nil {
			return nil, err
		}
		secret = key
	}

	return &FileStore{path: path, secret: secret}, nil
}

// Token opens the sealed file and returns the token.
func (s *FileStore) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read credential file: %w", err)
	}

	if len(data) < saltSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", ErrCorrupt
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	sealed := data[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := s.aead(salt)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, sealed, []byte(s.path))
	if err != nil {
		return "", ErrCorrupt
	}
	if len(plain) == 0 {
		return "", ErrNotFound
	}
	return string(plain), nil
}

// SetToken seals token to disk, replacing the previous file atomically.
func (s *FileStore) SetToken(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := s.aead(salt)
	if err != nil {
		return err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(token)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(token), []byte(s.path))

	return writeFileAtomic(s.path, out, 0o600)
}

// DeleteToken removes the sealed file. A missing file is not an error.
func (s *FileStore) DeleteToken(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *FileStore) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return aead, nil
}

func loadOrCreateKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil && len(key) == keySize {
		return key, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read credential key: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	if err := writeFileAtomic(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
