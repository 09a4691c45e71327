package maildir

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emersion/go-maildir"
	"go.uber.org/zap"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

// keysDirName is the directory under the base path holding key records.
// Wallet addresses never start with a dot, so it cannot collide with a mailbox.
const keysDirName = ".keys"

// MaildirStore implements dmthedev.Store using one maildir per recipient.
// It uses emersion/go-maildir for low-level maildir operations.
type MaildirStore struct {
	basePath      string
	maildirSubdir string // optional subdirectory under each mailbox (e.g., "Maildir")
	keys          *keyDir
	logger        *zap.Logger
	now           func() time.Time
	closed        atomic.Bool
}

// NewStore creates a new MaildirStore with the given base path.
// The optional maildirSubdir specifies a subdirectory under each mailbox
// (e.g., "Maildir" for paths like <address>/Maildir/).
func NewStore(basePath string, maildirSubdir string, logger *zap.Logger) *MaildirStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaildirStore{
		basePath:      basePath,
		maildirSubdir: maildirSubdir,
		keys:          newKeyDir(filepath.Join(basePath, keysDirName)),
		logger:        logger,
		now:           time.Now,
	}
}

// checkAddress rejects addresses that are empty or could name anything
// other than a single directory directly under the base path.
func checkAddress(address string) error {
	if address == "" {
		return errors.ErrInvalidAddress
	}
	if strings.HasPrefix(address, ".") || strings.ContainsAny(address, `/\`) || strings.ContainsRune(address, 0) {
		return errors.ErrPathTraversal
	}
	return nil
}

// mailboxPath returns the filesystem path for a recipient's maildir.
// Returns an error if the resulting path would escape the base directory.
func (s *MaildirStore) mailboxPath(address string) (string, error) {
	if err := checkAddress(address); err != nil {
		return "", err
	}

	var candidate string
	if s.maildirSubdir != "" {
		candidate = filepath.Join(s.basePath, address, s.maildirSubdir)
	} else {
		candidate = filepath.Join(s.basePath, address)
	}

	cleanBase := filepath.Clean(s.basePath)
	cleanCandidate := filepath.Clean(candidate)

	// Add separator to prevent prefix matching (e.g., /base-other matching /base)
	if !strings.HasPrefix(cleanCandidate+string(filepath.Separator), cleanBase+string(filepath.Separator)) {
		return "", errors.ErrPathTraversal
	}

	return cleanCandidate, nil
}

// ensureMaildir ensures the maildir exists, creating it if necessary.
func (s *MaildirStore) ensureMaildir(address string) (maildir.Dir, error) {
	path, err := s.mailboxPath(address)
	if err != nil {
		return "", err
	}
	dir := maildir.Dir(path)

	curPath := filepath.Join(path, "cur")
	if _, err := os.Stat(curPath); os.IsNotExist(err) {
		// Parent directories are needed when maildirSubdir is set.
		if err := os.MkdirAll(path, 0700); err != nil {
			return "", err
		}
		if err := dir.Init(); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func (s *MaildirStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	return ctx.Err()
}

// GetKey implements dmthedev.KeyRegistry.
func (s *MaildirStore) GetKey(ctx context.Context, address string) (*dmthedev.RecipientKeyRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := checkAddress(address); err != nil {
		return nil, err
	}
	return s.keys.Get(address)
}

// PutKey implements dmthedev.KeyRegistry.
func (s *MaildirStore) PutKey(ctx context.Context, address string, publicKey []byte, format string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := checkAddress(address); err != nil {
		return err
	}
	return s.keys.Put(&dmthedev.RecipientKeyRecord{
		WalletAddress: address,
		PublicKey:     publicKey,
		Format:        format,
		CreatedAt:     s.now().UTC(),
	})
}

// Append implements dmthedev.MessageStore. Each message is delivered as a
// JSON file into the recipient's maildir.
func (s *MaildirStore) Append(ctx context.Context, msg *dmthedev.StoredMessage) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := msg.Prepare(s.now()); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	dir, err := s.ensureMaildir(msg.RecipientAddress)
	if err != nil {
		return err
	}

	delivery, err := maildir.NewDelivery(string(dir))
	if err != nil {
		return err
	}
	if _, err := delivery.Write(data); err != nil {
		_ = delivery.Abort()
		return err
	}
	return delivery.Close()
}

// ListFor implements dmthedev.MessageStore.
func (s *MaildirStore) ListFor(ctx context.Context, address string) ([]dmthedev.StoredMessage, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	path, err := s.mailboxPath(address)
	if err != nil {
		return nil, err
	}

	messages := []dmthedev.StoredMessage{}

	curPath := filepath.Join(path, "cur")
	if _, err := os.Stat(curPath); os.IsNotExist(err) {
		return messages, nil
	}

	dir := maildir.Dir(path)

	// Unseen() moves messages from new/ to cur/ so Messages() sees all of them.
	if _, err := dir.Unseen(); err != nil {
		return nil, err
	}
	all, err := dir.Messages()
	if err != nil {
		return nil, err
	}

	for _, m := range all {
		stored, err := readMessage(m)
		if err != nil {
			s.logger.Warn("skipping unreadable message file",
				zap.String("recipient", address),
				zap.String("key", m.Key()),
				zap.Error(err))
			continue
		}
		messages = append(messages, stored)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	return messages, nil
}

func readMessage(m *maildir.Message) (dmthedev.StoredMessage, error) {
	var stored dmthedev.StoredMessage
	r, err := m.Open()
	if err != nil {
		return stored, err
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return stored, err
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return stored, err
	}
	return stored, nil
}

// Close implements dmthedev.Store. The maildir holds no open handles, so
// Close only marks the store unusable.
func (s *MaildirStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Compile-time interface verification.
var _ dmthedev.Store = (*MaildirStore)(nil)
