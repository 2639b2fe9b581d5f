package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// memStore is an in-memory cache.Store without expiry.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.failSet {
		return false
	}
	m.data[key] = append([]byte(nil), value...)
	return true
}

func (m *memStore) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok
}

func (m *memStore) Clear(context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data)
	m.data = make(map[string][]byte)
	return n
}

func (m *memStore) PurgeExpired(context.Context) int { return 0 }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var _ cache.Store = (*memStore)(nil)

// countingProbe returns a fixed result (or panics) and counts executions.
type countingProbe struct {
	name   string
	result probe.Result
	panics bool
	delay  time.Duration
	calls  atomic.Int32
}

func (p *countingProbe) Name() string { return p.name }

func (p *countingProbe) Execute(ctx context.Context, target string) probe.Result {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return probe.Failed(probe.Wrap(target, ctx.Err()))
		}
	}
	if p.panics {
		panic("boom")
	}
	return p.result
}

// stubbornProbe ignores its context entirely.
type stubbornProbe struct {
	name    string
	release chan struct{}
}

func (p *stubbornProbe) Name() string { return p.name }

func (p *stubbornProbe) Execute(context.Context, string) probe.Result {
	<-p.release
	return probe.Success("late", nil)
}

func successProbe(name string) *countingProbe {
	return &countingProbe{name: name, result: probe.Success(name+" ok", map[string]any{"probe": name},
		probe.NewFinding(probe.SeverityLow, name+" finding", nil))}
}

func failedProbe(name string, category probe.Category) *countingProbe {
	return &countingProbe{name: name, result: probe.FailedWith(category, name+" failed")}
}

func partialProbe(name string) *countingProbe {
	return &countingProbe{name: name, result: probe.Partial(name+" partial", map[string]any{"got": "some"},
		probe.NewError(probe.CategoryTimeout, "", context.DeadlineExceeded))}
}

// recordingRecorder counts recorder calls.
type recordingRecorder struct {
	mu       sync.Mutex
	hits     int
	misses   int
	writes   int
	finished map[string]probe.Status
	scans    int
}

func (r *recordingRecorder) CacheLookup(_ string, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recordingRecorder) CacheWrite(_ string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.writes++
	}
}

func (r *recordingRecorder) ProbeFinished(name string, status probe.Status, _ probe.Category, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]probe.Status)
	}
	r.finished[name] = status
}

func (r *recordingRecorder) ScanFinished(int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++
}
