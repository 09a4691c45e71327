package dmthedev

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/TrendsAI-bit/dmthedev/engine"
	"github.com/TrendsAI-bit/dmthedev/errors"
	"github.com/TrendsAI-bit/dmthedev/keyderive"
)

// Messenger publishes derived keys, seals messages for recipients and opens
// a wallet's inbox. It is safe for concurrent use if the Store is.
type Messenger struct {
	// store provides recipient keys and message storage.
	store Store

	logger  *zap.Logger
	metrics *metrics
	now     func() time.Time
	reg     prometheus.Registerer
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Messenger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics exports the messenger's counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Messenger) {
		m.reg = reg
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Messenger) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMessenger creates a messenger backed by store.
func NewMessenger(store Store, opts ...Option) *Messenger {
	m := &Messenger{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newMetrics(m.reg, m.logger)
	return m
}

// Publish derives the wallet's current-format keypair and registers its
// public key. The wallet is asked to sign once. The secret key is discarded.
func (m *Messenger) Publish(ctx context.Context, wallet Wallet) (*RecipientKeyRecord, error) {
	address := keyderive.CanonicalAddress(wallet.Address())

	keys, err := m.derive(ctx, wallet, address, keyderive.Current)
	if err != nil {
		return nil, err
	}
	defer keys.Wipe()

	rec := &RecipientKeyRecord{
		WalletAddress: address,
		PublicKey:     append([]byte(nil), keys.PublicKey[:]...),
		Format:        keys.Format,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.store.PutKey(ctx, address, rec.PublicKey, rec.Format); err != nil {
		return nil, fmt.Errorf("register key for %s: %w", address, err)
	}

	m.logger.Info("published encryption key",
		zap.String("wallet", address),
		zap.String("format", rec.Format),
		zap.String("key", errors.Fingerprint(rec.PublicKey)))
	return rec, nil
}

// Send seals text for the recipient's registered key and stores it.
// Returns errors.ErrKeyNotFound if the recipient has not published a key.
func (m *Messenger) Send(ctx context.Context, from, to, text string) (*StoredMessage, error) {
	from = keyderive.CanonicalAddress(from)
	to = keyderive.CanonicalAddress(to)
	if from == "" || to == "" {
		return nil, errors.ErrInvalidAddress
	}

	rec, err := m.store.GetKey(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("lookup key for %s: %w", to, err)
	}

	sealer := engine.Sealer{Now: m.now}
	env, err := sealer.Encrypt(text, rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt for %s: %w", to, err)
	}

	msg := &StoredMessage{
		SenderAddress:    from,
		RecipientAddress: to,
		Envelope:         env.ToWire(),
		CreatedAt:        m.now().UTC(),
	}
	if err := m.store.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message for %s: %w", to, err)
	}
	m.metrics.encrypted.Inc()

	m.logger.Debug("message sent",
		zap.String("id", msg.ID),
		zap.String("sender", from),
		zap.String("recipient", to))
	return msg, nil
}

// OpenSession re-derives the wallet's keypair for reading messages.
//
// The registered key record, if any, selects the derivation format and the
// public key every message is checked against. Without a record the current
// format is used and no expected-key check is made. The caller must Clear
// the session.
func (m *Messenger) OpenSession(ctx context.Context, wallet Wallet) (*Session, error) {
	address := keyderive.CanonicalAddress(wallet.Address())

	format := keyderive.Current
	var expected []byte

	rec, err := m.store.GetKey(ctx, address)
	switch {
	case err == nil:
		format, err = keyderive.FormatByName(rec.Format)
		if err != nil {
			return nil, fmt.Errorf("registered key for %s: %w", address, err)
		}
		expected = append([]byte(nil), rec.PublicKey...)
	case stderrors.Is(err, errors.ErrKeyNotFound):
		m.logger.Debug("no registered key, using current format",
			zap.String("wallet", address))
	default:
		return nil, fmt.Errorf("lookup key for %s: %w", address, err)
	}

	keys, err := m.derive(ctx, wallet, address, format)
	if err != nil {
		return nil, err
	}
	if expected != nil && !bytes.Equal(keys.PublicKey[:], expected) {
		m.logger.Warn("derived key does not match registered key",
			zap.String("wallet", address),
			zap.String("format", format.Name),
			zap.String("registered", errors.Fingerprint(expected)),
			zap.String("derived", errors.Fingerprint(keys.PublicKey[:])))
	}
	return newSession(address, format, keys, expected), nil
}

// Inbox opens every message addressed to the wallet, newest first.
// The wallet is asked to sign once for the whole inbox, and not at all when
// the inbox is empty. Messages that cannot be opened are returned with Err set.
func (m *Messenger) Inbox(ctx context.Context, wallet Wallet) ([]Received, error) {
	address := keyderive.CanonicalAddress(wallet.Address())
	if address == "" {
		return nil, errors.ErrInvalidAddress
	}

	msgs, err := m.store.ListFor(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", address, err)
	}
	if len(msgs) == 0 {
		return []Received{}, nil
	}

	session, err := m.OpenSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer session.Clear()

	out := make([]Received, 0, len(msgs))
	for _, msg := range msgs {
		r := session.Decrypt(msg)
		m.metrics.decrypted.WithLabelValues(r.Status()).Inc()
		if r.Err != nil {
			m.logger.Warn("could not open message",
				zap.String("id", msg.ID),
				zap.String("status", r.Status()),
				zap.Error(r.Err))
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Messenger) derive(ctx context.Context, wallet Wallet, address string, f keyderive.Format) (*keyderive.KeyPair, error) {
	keys, err := keyderive.DeriveWithFormat(ctx, wallet, address, f)
	switch {
	case err == nil:
		m.metrics.derivations.WithLabelValues(derivationOK).Inc()
		return keys, nil
	case stderrors.Is(err, errors.ErrUserRejected):
		m.metrics.derivations.WithLabelValues(derivationRejected).Inc()
	default:
		m.metrics.derivations.WithLabelValues(derivationFailed).Inc()
	}
	m.logger.Warn("key derivation failed",
		zap.String("wallet", address),
		zap.String("format", f.Name),
		zap.Error(err))
	return nil, err
}
