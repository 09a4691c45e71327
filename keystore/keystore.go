// Package keystore keeps local wallet keys on disk, encrypted under a passphrase.
//
// Each wallet is two files in the keystore directory:
//
//	<name>.key   salt (32B) || nonce (24B) || secretbox(JSON{scheme, secret})
//	<name>.addr  the wallet address in plain text
//
// The secretbox key is derived from the passphrase with Argon2id.
package keystore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/TrendsAI-bit/dmthedev/errors"
	"github.com/TrendsAI-bit/dmthedev/signer"
)

const (
	// Key file extensions
	privateKeyExt = ".key"
	addressExt    = ".addr"

	// Encrypted key file format: salt (32B) || nonce (24B) || ciphertext
	saltSize  = 32
	nonceSize = 24

	// Argon2id parameters for key derivation
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
)

// keyFile is the sealed content of a .key file.
type keyFile struct {
	Scheme string `json:"scheme"`
	Secret []byte `json:"secret"`
}

// Entry describes a stored wallet.
type Entry struct {
	Name    string
	Address string
}

// Store manages wallet key files in a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// New opens the keystore at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty keystore directory", errors.ErrStoreConfigInvalid)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the keystore directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create generates a new wallet for scheme and stores it under name.
func (s *Store) Create(name, scheme, passphrase string) (signer.KeyHolder, error) {
	w, err := signer.Generate(scheme)
	if err != nil {
		return nil, err
	}
	if err := s.Import(name, w, passphrase); err != nil {
		return nil, err
	}
	return w, nil
}

// Import stores an existing wallet under name. It refuses to overwrite.
func (s *Store) Import(name string, w signer.KeyHolder, passphrase string) error {
	keyPath, addrPath, err := s.paths(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("%w: %s", errors.ErrWalletExists, name)
	}

	secret := w.Secret()
	defer wipe(secret)
	plaintext, err := json.Marshal(keyFile{Scheme: w.Scheme(), Secret: secret})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	defer wipe(plaintext)

	sealed, err := encryptPrivateKey(plaintext, passphrase)
	if err != nil {
		return err
	}

	if err := os.WriteFile(keyPath, sealed, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(addrPath, []byte(w.Address()+"\n"), 0644); err != nil {
		return fmt.Errorf("write address: %w", err)
	}
	return nil
}

// Unlock decrypts the wallet stored under name.
func (s *Store) Unlock(name, passphrase string) (signer.KeyHolder, error) {
	keyPath, _, err := s.paths(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	encryptedKey, err := os.ReadFile(keyPath)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrWalletNotFound, name)
		}
		return nil, fmt.Errorf("read private key: %w", err)
	}

	plaintext, err := decryptPrivateKey(encryptedKey, passphrase)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	var kf keyFile
	if err := json.Unmarshal(plaintext, &kf); err != nil {
		return nil, errors.ErrInvalidKeyFormat
	}
	defer wipe(kf.Secret)

	return signer.FromSecret(kf.Scheme, kf.Secret)
}

// Address returns the stored address without unlocking the wallet.
func (s *Store) Address(name string) (string, error) {
	_, addrPath, err := s.paths(name)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	data, err := os.ReadFile(addrPath)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", errors.ErrWalletNotFound, name)
		}
		return "", fmt.Errorf("read address: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// List returns all stored wallets sorted by name.
func (s *Store) List() ([]Entry, error) {
	s.mu.RLock()
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+privateKeyExt))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), privateKeyExt)
		addr, err := s.Address(name)
		if err != nil {
			addr = ""
		}
		entries = append(entries, Entry{Name: name, Address: addr})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// paths returns the key and address file paths for a wallet name.
// Names must be a single path element.
func (s *Store) paths(name string) (keyPath, addrPath string, err error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", "", fmt.Errorf("%w: wallet name %q", errors.ErrPathTraversal, name)
	}
	base := filepath.Join(s.dir, name)
	return base + privateKeyExt, base + addressExt, nil
}

// encryptPrivateKey seals a key using the passphrase.
// File format: salt (32B) || nonce (24B) || ciphertext
func encryptPrivateKey(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer wipe(key[:])

	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &key)

	out := make([]byte, saltSize+nonceSize+len(ciphertext))
	copy(out[:saltSize], salt)
	copy(out[saltSize:saltSize+nonceSize], nonce[:])
	copy(out[saltSize+nonceSize:], ciphertext)
	return out, nil
}

// decryptPrivateKey decrypts a key using the passphrase.
// File format: salt (32B) || nonce (24B) || ciphertext
func decryptPrivateKey(encryptedKey []byte, passphrase string) ([]byte, error) {
	if len(encryptedKey) < saltSize+nonceSize+secretbox.Overhead {
		return nil, errors.ErrInvalidKeyFormat
	}

	salt := encryptedKey[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], encryptedKey[saltSize:saltSize+nonceSize])
	ciphertext := encryptedKey[saltSize+nonceSize:]

	key := deriveKey(passphrase, salt)
	defer wipe(key[:])

	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, errors.ErrKeyDecryptFailed
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) [32]byte {
	var key [32]byte
	derived := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	copy(key[:], derived)
	wipe(derived)
	return key
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
