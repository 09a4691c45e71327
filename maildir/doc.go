// Package maildir provides a Maildir-backed key registry and message store.
//
// Each sealed message is kept as a separate JSON file in the recipient's
// maildir, so delivery is atomic and needs no locking. Key records live in a
// hidden directory next to the mailboxes:
//
//	basePath/
//	├── .keys/
//	│   ├── <address>.json   # published public key and derivation format
//	│   └── tmp/
//	└── <address>/
//	    ├── new/     # Newly delivered messages
//	    ├── cur/     # Messages that have been listed
//	    └── tmp/     # Temporary files during delivery
//
// The package registers itself with the dmthedev registry under the name "maildir".
// Import it with a blank identifier to enable maildir support:
//
//	import _ "github.com/TrendsAI-bit/dmthedev/maildir"
//
// Then open a maildir store:
//
//	store, err := dmthedev.Open(dmthedev.StoreConfig{
//	    Type:     "maildir",
//	    BasePath: "/var/lib/dmthedev",
//	})
package maildir
