package maildir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

// keyDir stores one JSON key record per wallet address. Records are written
// to tmp/ first and renamed into place, so readers never see a partial file
// and a republished key replaces the old one atomically.
//
//	.keys/
//	├── <address>.json
//	└── tmp/
type keyDir struct {
	path string
}

// keyRecord is the on-disk form of a dmthedev.RecipientKeyRecord.
type keyRecord struct {
	WalletAddress string    `json:"walletAddress"`
	PublicKey     []byte    `json:"publicKey"`
	Format        string    `json:"format"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newKeyDir(path string) *keyDir {
	return &keyDir{path: path}
}

// create creates the key directory and its tmp/ subdirectory.
func (k *keyDir) create() error {
	return os.MkdirAll(filepath.Join(k.path, "tmp"), 0700)
}

func (k *keyDir) recordPath(address string) string {
	return filepath.Join(k.path, address+".json")
}

// Put writes a key record, replacing any previous record for the address.
func (k *keyDir) Put(rec *dmthedev.RecipientKeyRecord) error {
	if err := k.create(); err != nil {
		return err
	}

	data, err := json.Marshal(keyRecord{
		WalletAddress: rec.WalletAddress,
		PublicKey:     rec.PublicKey,
		Format:        rec.Format,
		CreatedAt:     rec.CreatedAt,
	})
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(k.path, "tmp", uuid.NewString())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, k.recordPath(rec.WalletAddress)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Get reads the key record for an address.
// Returns errors.ErrKeyNotFound if no record exists.
func (k *keyDir) Get(address string) (*dmthedev.RecipientKeyRecord, error) {
	data, err := os.ReadFile(k.recordPath(address))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, err
	}

	var rec keyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: key record for %s: %v", errors.ErrInvalidKeyFormat, address, err)
	}
	if rec.WalletAddress != address {
		return nil, fmt.Errorf("%w: key record for %s names %s", errors.ErrInvalidKeyFormat, address, rec.WalletAddress)
	}

	return &dmthedev.RecipientKeyRecord{
		WalletAddress: rec.WalletAddress,
		PublicKey:     rec.PublicKey,
		Format:        rec.Format,
		CreatedAt:     rec.CreatedAt,
	}, nil
}
