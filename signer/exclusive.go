package signer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Exclusive wraps a wallet so that at most one signing prompt is outstanding.
// Concurrent requests for the same bytes share one prompt; requests for
// different bytes wait their turn.
type Exclusive struct {
	wallet  Wallet
	turn    *semaphore.Weighted
	group   singleflight.Group
	limiter *rate.Limiter

	mu      sync.Mutex
	flights map[string]*flight
	gen     uint64
}

// flight is one shared prompt. Its context is cancelled once every caller
// waiting on it has gone, never by a single caller leaving.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// ExclusiveOption configures an Exclusive signer.
type ExclusiveOption func(*Exclusive)

// WithPromptInterval spaces consecutive prompts at least d apart.
// Zero disables pacing.
func WithPromptInterval(d time.Duration) ExclusiveOption {
	return func(e *Exclusive) {
		if d <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewExclusive wraps w.
func NewExclusive(w Wallet, opts ...ExclusiveOption) *Exclusive {
	e := &Exclusive{
		wallet:  w,
		turn:    semaphore.NewWeighted(1),
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address implements Wallet.
func (e *Exclusive) Address() string {
	return e.wallet.Address()
}

// Sign implements Wallet. Each caller receives its own copy of the signature
// and may give up through its own ctx without failing the other callers.
func (e *Exclusive) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	f := e.join(ctx, msg)
	defer e.leave(msg, f)

	ch := e.group.DoChan(f.key, func() (interface{}, error) {
		return e.prompt(f.ctx, msg)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sig := res.Val.([]byte)
		return append([]byte(nil), sig...), nil
	}
}

// join attaches the caller to the pending prompt for msg, starting a new one
// if none is pending. The prompt keeps ctx's values but not its deadline.
func (e *Exclusive) join(ctx context.Context, msg []byte) *flight {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.flights[string(msg)]
	if !ok {
		e.gen++
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: strconv.FormatUint(e.gen, 10), ctx: pctx, cancel: cancel}
		e.flights[string(msg)] = f
	}
	f.waiters++
	return f
}

func (e *Exclusive) leave(msg []byte, f *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if e.flights[string(msg)] == f {
		delete(e.flights, string(msg))
	}
}

func (e *Exclusive) prompt(ctx context.Context, msg []byte) ([]byte, error) {
	if err := e.turn.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.turn.Release(1)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return e.wallet.Sign(ctx, msg)
}
