package dmthedev

import "context"

// Signer signs arbitrary bytes with a wallet's long-lived key.
// Sign may block for as long as a human takes to approve a prompt and must
// honor ctx cancellation. Refusals should wrap errors.ErrUserRejected or
// errors.ErrUnsupported.
type Signer interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}

// Wallet is a Signer that knows its own address.
type Wallet interface {
	Signer

	// Address returns the wallet's public address.
	Address() string
}
