// Package health implements the Health Monitor from spec §4.2, grounded
// on original_source/src/mcpx/health.py's HealthChecker/HealthStatus
// state machine.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// Status is one backend's current health classification. There are no
// terminal states.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Record is one backend's HealthRecord (spec §3).
type Record struct {
	Status              Status
	LastProbe           time.Time
	LastSuccess         time.Time
	ConsecutiveFailures int
	LastError           string
}

// Prober probes a single backend, returning nil on success.
type Prober func(ctx context.Context, backend string) error

// Monitor runs the periodic liveness probe loop. Probes across backends
// run in parallel; probes on a single backend never overlap (one probe
// per cycle) because cycles themselves are serial.
type Monitor struct {
	interval  time.Duration
	timeout   time.Duration
	threshold int
	probe     Prober

	mu       sync.RWMutex
	records  map[string]*Record
	tracked  map[string]struct{}

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Monitor. probe is called once per backend per cycle;
// it should use ping if the upstream supports it, falling back to a
// catalog listing otherwise (spec §4.2) — that fallback policy lives in
// the caller-supplied Prober, not in this package, since it depends on
// the upstream client abstraction.
func New(interval, timeout time.Duration, threshold int, probe Prober) *Monitor {
	return &Monitor{
		interval:  interval,
		timeout:   timeout,
		threshold: threshold,
		probe:     probe,
		records:   make(map[string]*Record),
		tracked:   make(map[string]struct{}),
	}
}

// Track begins monitoring backend, seeding it with an unknown-status
// record. Safe to call before or after Start.
func (m *Monitor) Track(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[backend] = struct{}{}
	if _, ok := m.records[backend]; !ok {
		m.records[backend] = &Record{Status: StatusUnknown}
	}
}

// Untrack stops monitoring backend and discards its record
// (disconnect-backend destroys the HealthRecord per spec §3).
func (m *Monitor) Untrack(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, backend)
	delete(m.records, backend)
}

// Record returns a copy of backend's current health record.
func (m *Monitor) Record(backend string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[backend]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// IsHealthy reports whether backend's last known status is healthy.
func (m *Monitor) IsHealthy(backend string) bool {
	r, ok := m.Record(backend)
	return ok && r.Status == StatusHealthy
}

// Start, if not already running, performs one synchronous probe cycle
// and then launches the background probe loop before returning —
// mirroring HealthChecker.start, which checks all servers once before
// the loop's first sleep.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		logging.Warn("HealthMonitor", "start called while already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.checkAll(ctx)

	go m.loop(loopCtx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	m.mu.RLock()
	backends := make([]string, 0, len(m.tracked))
	for b := range m.tracked {
		backends = append(backends, b)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range backends {
		backend := backend
		g.Go(func() error {
			// Each probe's error is recorded, never propagated: a failing
			// probe must not cancel its siblings' contexts, so this
			// goroutine always returns nil regardless of probe outcome.
			m.checkOne(gctx, backend)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) checkOne(ctx context.Context, backend string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.probe(probeCtx, backend)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[backend]
	if !ok {
		r = &Record{}
		m.records[backend] = r
	}
	r.LastProbe = now
	if err == nil {
		r.Status = StatusHealthy
		r.LastSuccess = now
		r.ConsecutiveFailures = 0
		r.LastError = ""
		return
	}
	r.ConsecutiveFailures++
	r.LastError = err.Error()
	if r.ConsecutiveFailures >= m.threshold {
		r.Status = StatusUnhealthy
	}
	logging.Debug("HealthMonitor", "probe failed for %s (%d/%d): %v", backend, r.ConsecutiveFailures, m.threshold, err)
}

// Stop cancels and awaits the loop. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the background loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
