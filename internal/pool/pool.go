// Package pool implements the bounded, scoped-acquire Connection Pool
// from spec §4.1, grounded directly on the original implementation's
// ConnectionPool (original_source/src/mcpx/pool.py): an available set, an
// in-use set, release-to-closed-pool destroys immediately, release when
// full destroys, close drains available then best-effort destroys
// in-use.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/giantswarm/mcpmux/internal/client"
	"github.com/giantswarm/mcpmux/internal/logging"
)

// DefaultCapacity is the pool size used when a backend does not
// override it (spec §9 Open Question, resolved in favor of
// configurability; 10 remains the default).
const DefaultCapacity = 10

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = fmt.Errorf("connection pool is closed")

// Pool multiplexes a bounded set of fresh upstream clients for one
// backend, produced by its client Factory.
type Pool struct {
	name     string
	factory  client.Factory
	capacity int64

	mu        sync.Mutex
	available []client.UpstreamClient
	inUse     map[client.UpstreamClient]struct{}
	closed    bool

	sem *semaphore.Weighted
}

// New constructs a pool with the given capacity (<=0 uses DefaultCapacity).
func New(name string, factory client.Factory, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		name:      name,
		factory:   factory,
		capacity:  int64(capacity),
		inUse:     make(map[client.UpstreamClient]struct{}),
		sem:       semaphore.NewWeighted(int64(capacity)),
	}
}

// Handle is a scoped acquisition: Release must be called exactly once,
// on every exit path (success, error, or panic via defer), per spec
// §4.1's "scoped acquisition that guarantees release."
type Handle struct {
	pool   *Pool
	Client client.UpstreamClient
}

// Release returns the client to the pool unless the pool is closed or at
// capacity, in which case the client is destroyed.
func (h *Handle) Release() {
	h.pool.release(h.Client)
}

// Acquire blocks until an available client exists or a new one can be
// constructed under capacity, then returns a scoped Handle. If
// construction fails, the slot is released and the error is returned
// directly to the caller (spec §4.1 edge case).
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.available); n > 0 {
		c := p.available[n-1]
		p.available = p.available[:n-1]
		p.inUse[c] = struct{}{}
		p.mu.Unlock()
		logging.Debug("Pool", "%s: reused connection (%d in use)", p.name, len(p.inUse))
		return &Handle{pool: p, Client: c}, nil
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire pool slot for %s: %w", p.name, err)
	}

	c := p.factory()
	if err := c.Initialize(ctx); err != nil {
		p.sem.Release(1)
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	p.inUse[c] = struct{}{}
	p.mu.Unlock()

	logging.Debug("Pool", "%s: created new connection (%d in use)", p.name, len(p.inUse))
	return &Handle{pool: p, Client: c}, nil
}

func (p *Pool) release(c client.UpstreamClient) {
	p.mu.Lock()
	_, wasInUse := p.inUse[c]
	delete(p.inUse, c)

	if p.closed {
		p.mu.Unlock()
		if wasInUse {
			p.sem.Release(1)
		}
		if err := c.Close(); err != nil {
			logging.Debug("Pool", "%s: error closing client on closed-pool release: %v", p.name, err)
		}
		return
	}

	if int64(len(p.available)) < p.capacity {
		p.available = append(p.available, c)
		p.mu.Unlock()
		logging.Debug("Pool", "%s: connection returned to pool", p.name)
		return
	}
	p.mu.Unlock()

	if wasInUse {
		p.sem.Release(1)
	}
	if err := c.Close(); err != nil {
		logging.Debug("Pool", "%s: error closing client (pool full): %v", p.name, err)
	}
	logging.Debug("Pool", "%s: connection closed (pool full)", p.name)
}

// Close marks the pool closed, destroys all available clients, and
// best-effort destroys all in-use clients; further acquisitions fail
// with ErrClosed. This adopts the "best-effort close" resolution of
// spec §9's Open Question: in-use clients are closed without waiting for
// their current user to release them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	available := p.available
	p.available = nil
	inUse := make([]client.UpstreamClient, 0, len(p.inUse))
	for c := range p.inUse {
		inUse = append(inUse, c)
	}
	p.mu.Unlock()

	for _, c := range available {
		if err := c.Close(); err != nil {
			logging.Debug("Pool", "%s: error closing available client: %v", p.name, err)
		}
	}
	for _, c := range inUse {
		if err := c.Close(); err != nil {
			logging.Debug("Pool", "%s: error closing in-use client: %v", p.name, err)
		}
	}
	logging.Info("Pool", "%s: closed", p.name)
}

// Size is the current available+in-use client count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available) + len(p.inUse)
}

func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
