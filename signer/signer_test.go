package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TrendsAI-bit/dmthedev/errors"
)

func TestSolana_DeterministicAndVerifiable(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	w, err := NewSolana(seed)
	if err != nil {
		t.Fatalf("NewSolana failed: %v", err)
	}

	ctx := context.Background()
	msg := []byte("dmthedev:message-encryption:v1:" + w.Address())
	sig1, err := w.Sign(ctx, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	sig2, err := w.Sign(ctx, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Error("ed25519 signatures are not deterministic")
	}
	if len(sig1) != ed25519.SignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig1), ed25519.SignatureSize)
	}

	ok, err := VerifySolana(w.Address(), msg, sig1)
	if err != nil {
		t.Fatalf("VerifySolana failed: %v", err)
	}
	if !ok {
		t.Error("signature did not verify")
	}

	reloaded, err := NewSolana(w.Secret())
	if err != nil {
		t.Fatalf("NewSolana(Secret) failed: %v", err)
	}
	if reloaded.Address() != w.Address() {
		t.Error("reloaded wallet has a different address")
	}
}

func TestNewSolana_KeypairFormat(t *testing.T) {
	w, err := GenerateSolana(nil)
	if err != nil {
		t.Fatalf("GenerateSolana failed: %v", err)
	}
	keypair := append(w.Secret(), w.key.Public().(ed25519.PublicKey)...)

	loaded, err := NewSolana(keypair)
	if err != nil {
		t.Fatalf("NewSolana(keypair) failed: %v", err)
	}
	if loaded.Address() != w.Address() {
		t.Error("address mismatch after loading 64-byte keypair")
	}

	keypair[63] ^= 1
	if _, err := NewSolana(keypair); !stderrors.Is(err, errors.ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat for inconsistent keypair, got %v", err)
	}
	if _, err := NewSolana(make([]byte, 10)); !stderrors.Is(err, errors.ErrInvalidKeyLength) {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestVerifySolana_BadAddress(t *testing.T) {
	if _, err := VerifySolana("0OIl", nil, nil); !stderrors.Is(err, errors.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress for invalid base58, got %v", err)
	}
	if _, err := VerifySolana("3mJr7AoUXx2Wqd", nil, nil); !stderrors.Is(err, errors.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress for short key, got %v", err)
	}
}

func TestEthereum_DeterministicAndRecoverable(t *testing.T) {
	secret := bytes.Repeat([]byte{0x11}, 32)
	w, err := NewEthereum(secret)
	if err != nil {
		t.Fatalf("NewEthereum failed: %v", err)
	}
	if !strings.HasPrefix(w.Address(), "0x") || len(w.Address()) != 42 {
		t.Errorf("unexpected address %q", w.Address())
	}

	ctx := context.Background()
	msg := []byte("dmthedev:message-encryption:v1:" + w.Address())
	sig1, err := w.Sign(ctx, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	sig2, err := w.Sign(ctx, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Error("secp256k1 signatures are not deterministic")
	}
	if len(sig1) != EthereumSignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig1), EthereumSignatureSize)
	}
	if v := sig1[EthereumSignatureSize-1]; v != 27 && v != 28 {
		t.Errorf("V = %d, want 27 or 28", v)
	}

	ok, err := VerifyEthereum(strings.ToLower(w.Address()), msg, sig1)
	if err != nil {
		t.Fatalf("VerifyEthereum failed: %v", err)
	}
	if !ok {
		t.Error("signature did not recover to the wallet address")
	}

	ok, err = VerifyEthereum(w.Address(), []byte("other"), sig1)
	if err != nil {
		t.Fatalf("VerifyEthereum failed: %v", err)
	}
	if ok {
		t.Error("signature verified for the wrong message")
	}

	reloaded, err := NewEthereum(w.Secret())
	if err != nil {
		t.Fatalf("NewEthereum(Secret) failed: %v", err)
	}
	if reloaded.Address() != w.Address() {
		t.Error("reloaded wallet has a different address")
	}
}

func TestNewEthereum_Invalid(t *testing.T) {
	if _, err := NewEthereum(make([]byte, 32)); !stderrors.Is(err, errors.ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat for zero key, got %v", err)
	}
	if _, err := VerifyEthereum("not-an-address", nil, nil); err != errors.ErrInvalidAddress {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := VerifyEthereum("0x0000000000000000000000000000000000000000", nil, make([]byte, 10)); !stderrors.Is(err, errors.ErrMalformedSignature) {
		t.Errorf("expected ErrMalformedSignature, got %v", err)
	}
}

func TestSign_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, _ := GenerateSolana(nil)
	eth, _ := GenerateEthereum()
	for _, w := range []Wallet{sol, eth} {
		if _, err := w.Sign(ctx, []byte("x")); !stderrors.Is(err, context.Canceled) {
			t.Errorf("%T: expected context.Canceled, got %v", w, err)
		}
	}
}

func TestFromSecretAndGenerate(t *testing.T) {
	for _, scheme := range []string{SchemeEd25519, SchemeSecp256k1} {
		t.Run(scheme, func(t *testing.T) {
			w, err := Generate(scheme)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if w.Scheme() != scheme {
				t.Errorf("Scheme = %q, want %q", w.Scheme(), scheme)
			}
			again, err := FromSecret(scheme, w.Secret())
			if err != nil {
				t.Fatalf("FromSecret failed: %v", err)
			}
			if again.Address() != w.Address() {
				t.Error("address changed after FromSecret")
			}
		})
	}

	if _, err := Generate("rsa"); !stderrors.Is(err, errors.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := FromSecret("rsa", nil); !stderrors.Is(err, errors.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestRejecting(t *testing.T) {
	r := Rejecting{Addr: "addr"}
	if _, err := r.Sign(context.Background(), nil); err != errors.ErrUserRejected {
		t.Errorf("expected ErrUserRejected, got %v", err)
	}
	r = Rejecting{Addr: "addr", Err: errors.ErrUnsupported}
	if _, err := r.Sign(context.Background(), nil); err != errors.ErrUnsupported {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if r.Address() != "addr" {
		t.Errorf("Address = %q", r.Address())
	}
}

// blockingWallet records concurrency and blocks until released.
type blockingWallet struct {
	release  chan struct{}
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *blockingWallet) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	b.calls.Add(1)
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return append([]byte("sig:"), msg...), nil
}

func (b *blockingWallet) Address() string { return "blocking" }

func TestExclusive_CoalescesIdenticalRequests(t *testing.T) {
	inner := &blockingWallet{release: make(chan struct{})}
	ex := NewExclusive(inner)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ex.Sign(context.Background(), []byte("challenge"))
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("wallet prompted %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if string(results[i]) != "sig:challenge" {
			t.Errorf("caller %d got %q", i, results[i])
		}
	}
	results[0][0] = 'X'
	if results[1][0] == 'X' {
		t.Error("callers share the same signature buffer")
	}
}

func TestExclusive_SerializesDistinctRequests(t *testing.T) {
	inner := &blockingWallet{release: make(chan struct{})}
	close(inner.release)
	ex := NewExclusive(inner)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := ex.Sign(context.Background(), []byte{byte(i)}); err != nil {
				t.Errorf("Sign failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := inner.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent prompts = %d, want 1", got)
	}
	if got := inner.calls.Load(); got != 16 {
		t.Errorf("calls = %d, want 16", got)
	}
	if ex.Address() != "blocking" {
		t.Errorf("Address = %q", ex.Address())
	}
}

func TestExclusive_CancelWhileWaiting(t *testing.T) {
	inner := &blockingWallet{release: make(chan struct{})}
	ex := NewExclusive(inner)
	defer close(inner.release)

	go func() {
		_, _ = ex.Sign(context.Background(), []byte("first"))
	}()
	for inner.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ex.Sign(ctx, []byte("second"))
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestExclusive_CallerCancelDoesNotFailSharedPrompt(t *testing.T) {
	inner := &blockingWallet{release: make(chan struct{})}
	ex := NewExclusive(inner)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := ex.Sign(first, []byte("challenge"))
		firstErr <- err
	}()
	for inner.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		sig []byte
		err error
	}
	second := make(chan result, 1)
	go func() {
		sig, err := ex.Sign(context.Background(), []byte("challenge"))
		second <- result{sig, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	if err := <-firstErr; !stderrors.Is(err, context.Canceled) {
		t.Errorf("first caller: expected context.Canceled, got %v", err)
	}

	close(inner.release)
	res := <-second
	if res.err != nil {
		t.Fatalf("second caller failed: %v", res.err)
	}
	if string(res.sig) != "sig:challenge" {
		t.Errorf("second caller got %q", res.sig)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("wallet prompted %d times, want 1", got)
	}
}

func TestExclusive_AllCallersGoneCancelsPrompt(t *testing.T) {
	inner := &blockingWallet{release: make(chan struct{})}
	defer close(inner.release)
	ex := NewExclusive(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Sign(ctx, []byte("abandoned")); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for inner.inFlight.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned prompt is still open")
		}
		time.Sleep(time.Millisecond)
	}

	// The slot is free again for the next request.
	next, cancelNext := context.WithTimeout(context.Background(), time.Second)
	defer cancelNext()
	go func() {
		for inner.calls.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		inner.release <- struct{}{}
	}()
	sig, err := ex.Sign(next, []byte("next"))
	if err != nil {
		t.Fatalf("Sign after abandon failed: %v", err)
	}
	if string(sig) != "sig:next" {
		t.Errorf("got %q", sig)
	}
}

func TestExclusive_PromptInterval(t *testing.T) {
	w, err := GenerateSolana(nil)
	if err != nil {
		t.Fatalf("GenerateSolana failed: %v", err)
	}
	ex := NewExclusive(w, WithPromptInterval(50*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := ex.Sign(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three paced prompts took %v, want at least ~100ms", elapsed)
	}

	unpaced := NewExclusive(w, WithPromptInterval(0))
	if unpaced.limiter != nil {
		t.Error("zero interval should disable pacing")
	}
}
