// Package sqlite provides a SQLite-backed key registry and message store.
//
// The package registers itself with the dmthedev registry under the name
// "sqlite". BasePath is the database file; ":memory:" gives a private
// in-memory database that lives until Close.
//
//	import _ "github.com/TrendsAI-bit/dmthedev/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipient_keys (
	wallet_address TEXT PRIMARY KEY,
	public_key BLOB NOT NULL,
	format TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	sender_address TEXT NOT NULL,
	recipient_address TEXT NOT NULL,
	ciphertext TEXT NOT NULL,
	nonce TEXT NOT NULL,
	ephemeral_public_key TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_address, created_at);
`

// Store implements dmthedev.Store on a single SQLite database.
// Times are stored as Unix nanoseconds so ordering and round trips are exact.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
	closed atomic.Bool
}

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.ErrStoreConfigInvalid
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and every
	// connection to ":memory:" would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Debug("sqlite store opened", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	return ctx.Err()
}

// GetKey implements dmthedev.KeyRegistry.
func (s *Store) GetKey(ctx context.Context, address string) (*dmthedev.RecipientKeyRecord, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, errors.ErrInvalidAddress
	}

	rec := &dmthedev.RecipientKeyRecord{WalletAddress: address}
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT public_key, format, created_at FROM recipient_keys WHERE wallet_address = ?`,
		address,
	).Scan(&rec.PublicKey, &rec.Format, &createdAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query key: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

// PutKey implements dmthedev.KeyRegistry.
func (s *Store) PutKey(ctx context.Context, address string, publicKey []byte, format string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if address == "" {
		return errors.ErrInvalidAddress
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipient_keys (wallet_address, public_key, format, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			public_key = excluded.public_key,
			format = excluded.format,
			created_at = excluded.created_at`,
		address, publicKey, format, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	return nil
}

// Append implements dmthedev.MessageStore.
func (s *Store) Append(ctx context.Context, msg *dmthedev.StoredMessage) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := msg.Prepare(s.now()); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_address, recipient_address, ciphertext, nonce, ephemeral_public_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.SenderAddress,
		msg.RecipientAddress,
		msg.Envelope.Ciphertext,
		msg.Envelope.Nonce,
		msg.Envelope.EphemeralPublicKey,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListFor implements dmthedev.MessageStore.
func (s *Store) ListFor(ctx context.Context, address string) ([]dmthedev.StoredMessage, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_address, recipient_address, ciphertext, nonce, ephemeral_public_key, created_at
		FROM messages
		WHERE recipient_address = ?
		ORDER BY created_at DESC, seq DESC`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []dmthedev.StoredMessage{}
	for rows.Next() {
		var m dmthedev.StoredMessage
		var createdAt int64
		if err := rows.Scan(
			&m.ID,
			&m.SenderAddress,
			&m.RecipientAddress,
			&m.Envelope.Ciphertext,
			&m.Envelope.Nonce,
			&m.Envelope.EphemeralPublicKey,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return messages, nil
}

// Close implements dmthedev.Store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Compile-time interface verification.
var _ dmthedev.Store = (*Store)(nil)
