package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcpmux/internal/client"
)

// fakeClient is a minimal in-memory UpstreamClient for exercising the
// pool's acquire/release/close bookkeeping without a real subprocess or
// network transport.
type fakeClient struct {
	id          int
	initErr     error
	closed      bool
	initialized bool
}

func (f *fakeClient) Initialize(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}
func (f *fakeClient) Close() error { f.closed = true; return nil }
func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error)       { return nil, nil }
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeClient) Ping(ctx context.Context) error                { return nil }
func (f *fakeClient) InitializeResult() *mcp.InitializeResult { return nil }

func newCountingFactory(failAfter int) (client.Factory, *int32) {
	var count int32
	var created int32
	factory := func() client.UpstreamClient {
		n := atomic.AddInt32(&count, 1)
		atomic.AddInt32(&created, 1)
		c := &fakeClient{id: int(n)}
		if failAfter > 0 && int(n) > failAfter {
			c.initErr = fmt.Errorf("simulated init failure")
		}
		return c
	}
	return factory, &created
}

func TestPool_AcquireCreatesUpToCapacity(t *testing.T) {
	factory, created := newCountingFactory(0)
	p := New("test", factory, 2)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(created))
	assert.Equal(t, 2, p.InUseCount())

	h1.Release()
	h2.Release()
	assert.Equal(t, 2, p.AvailableCount())
}

func TestPool_AcquireReusesReleased(t *testing.T) {
	factory, created := newCountingFactory(0)
	p := New("test", factory, 2)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h1.Release()

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	_ = h2

	assert.Equal(t, int32(1), atomic.LoadInt32(created), "second acquire should reuse the released client")
}

func TestPool_AcquireFailureReleasesSlot(t *testing.T) {
	factory, _ := newCountingFactory(1) // first succeeds, rest fail
	p := New("test", factory, 2)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)

	// h1 is still in use and nothing is available, so this acquire
	// constructs the 2nd client, whose initialization fails; it must
	// release its semaphore slot so the pool doesn't deadlock.
	_, err = p.Acquire(ctx)
	assert.Error(t, err)

	// The failed construction's slot was not leaked: one of the two slots
	// is still free while h1 holds the other.
	require.True(t, p.sem.TryAcquire(1), "failed construction must release its slot")
	p.sem.Release(1)
	h1.Release()
}

func TestPool_ReleaseWhenFullDestroysClient(t *testing.T) {
	factory, _ := newCountingFactory(0)
	p := New("test", factory, 1)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c1 := h1.Client.(*fakeClient)
	h1.Release()

	h2, err := p.Acquire(ctx) // reuses c1
	require.NoError(t, err)
	assert.Same(t, c1, h2.Client)

	// Manually stuff the available slot full, then release h2's client to
	// verify an over-capacity release destroys it.
	p.mu.Lock()
	p.available = append(p.available, &fakeClient{})
	p.mu.Unlock()
	h2.Release()

	assert.True(t, c1.closed)
}

func TestPool_AcquireAfterCloseFails(t *testing.T) {
	factory, _ := newCountingFactory(0)
	p := New("test", factory, 2)
	p.Close()

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_CloseDestroysAvailableAndInUse(t *testing.T) {
	factory, _ := newCountingFactory(0)
	p := New("test", factory, 2)
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c1 := h1.Client.(*fakeClient)

	h2, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2 := h2.Client.(*fakeClient)
	h2.Release() // goes to available

	p.Close()

	assert.True(t, c2.closed, "available client must be closed")
	assert.True(t, c1.closed, "in-use client must be best-effort closed too")
}

func TestPool_CloseIsIdempotent(t *testing.T) {
	factory, _ := newCountingFactory(0)
	p := New("test", factory, 1)
	p.Close()
	assert.NotPanics(t, func() { p.Close() })
}

func TestPool_DefaultCapacityUsedWhenNonPositive(t *testing.T) {
	factory, _ := newCountingFactory(0)
	p := New("test", factory, 0)
	assert.Equal(t, int64(DefaultCapacity), p.capacity)
}
