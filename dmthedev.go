// Package dmthedev lets a sender encrypt a message to a wallet address and
// lets the wallet owner read it back, without any encryption secret ever being
// stored.
//
// A recipient publishes an X25519 public key derived from their wallet's
// signature over a fixed challenge (see package keyderive). Senders look that
// key up in a KeyRegistry, seal the message with a fresh ephemeral key (see
// package engine) and append it to a MessageStore. To read, the recipient signs
// the same challenge again, which reproduces the secret key for the duration
// of one Session.
//
// Backends register themselves by name. Import one with a blank identifier:
//
//	import _ "github.com/TrendsAI-bit/dmthedev/sqlite"
//
// Then open it and build a Messenger:
//
//	store, err := dmthedev.Open(dmthedev.StoreConfig{
//	    Type:     "sqlite",
//	    BasePath: "/var/lib/dmthedev/messages.db",
//	})
//	defer store.Close()
//	m := dmthedev.NewMessenger(store, dmthedev.WithLogger(logger))
package dmthedev

// Store combines key registry and message storage in one backend.
// A Store owns its connection or directory handles and must be closed once.
type Store interface {
	KeyRegistry
	MessageStore

	// Close releases the backend. Operations after Close fail with
	// errors.ErrStoreClosed.
	Close() error
}
