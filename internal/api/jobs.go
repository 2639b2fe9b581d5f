package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// JobStatus tracks an asynchronous scan through its lifecycle.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

const (
	defaultMaxJobs      = 1000
	defaultJobRetention = 24 * time.Hour
	jobSweepInterval    = 5 * time.Minute
	subscriberBuffer    = 32
)

// Job is one scan requested through the API.
type Job struct {
	ID         string        `json:"id"`
	Target     string        `json:"target"`
	Probes     []string      `json:"probes"`
	Cache      bool          `json:"cache"`
	Status     JobStatus     `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	ReportID   string        `json:"report_id,omitempty"`
	Report     *probe.Report `json:"report,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (j Job) finished() bool {
	return j.Status == JobDone || j.Status == JobError
}

// settledAt is when a finished job stopped changing.
func (j Job) settledAt() time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}

// summary drops the report so list and stream payloads stay small.
func (j Job) summary() Job {
	j.Report = nil
	return j
}

// JobManagerOption tunes retention.
type JobManagerOption func(*JobManager)

// WithJobRetention drops finished jobs once they are older than d.
// Zero keeps them until the count cap evicts them.
func WithJobRetention(d time.Duration) JobManagerOption {
	return func(m *JobManager) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// JobManager keeps scan jobs in memory and fans out updates to subscribers.
// Finished jobs are evicted by age and, past maxJobs, oldest first.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int
	retention   time.Duration
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewJobManager(opts ...JobManagerOption) *JobManager {
	m := &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     defaultMaxJobs,
		retention:   defaultJobRetention,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweepLoop(jobSweepInterval)
	return m
}

// Close stops the sweeper and closes every subscriber channel.
func (m *JobManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		defer m.mu.Unlock()
		for ch := range m.subscribers {
			delete(m.subscribers, ch)
			close(ch)
		}
	})
}

// SetMaxJobs caps how many jobs are retained. Non-positive values are ignored.
func (m *JobManager) SetMaxJobs(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.maxJobs = n
	m.mu.Unlock()
}

func (m *JobManager) CreateJob(target string, probes []string, cache bool) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Target:    target,
		Probes:    append([]string(nil), probes...),
		Cache:     cache,
		Status:    JobPending,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return m.publish(job)
}

// UpdateJob applies update under the lock and returns a copy, or nil when the
// job is unknown.
func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	return m.publish(job)
}

func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// ListJobs returns job summaries, newest first. limit <= 0 means all.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Subscribe returns a channel of job summaries and a func that detaches it.
func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, subscriberBuffer)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subscribers[ch]; ok {
				delete(m.subscribers, ch)
				close(ch)
			}
		})
	}
}

// publish must be called with m.mu held. It returns a copy of job and
// offers its summary to every subscriber without blocking.
func (m *JobManager) publish(job *Job) *Job {
	snapshot := *job
	update := snapshot.summary()
	for ch := range m.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
	return &snapshot
}

func (m *JobManager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

// prune evicts expired finished jobs, then the oldest finished ones while
// the store is over maxJobs. Pending and running jobs are never evicted.
func (m *JobManager) prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evictable := make([]*Job, 0)
	for _, job := range m.jobs {
		if job.finished() {
			evictable = append(evictable, job)
		}
	}
	sort.Slice(evictable, func(i, j int) bool {
		return evictable[i].settledAt().Before(evictable[j].settledAt())
	})

	removed := 0
	if m.retention > 0 {
		cutoff := m.now().Add(-m.retention)
		for removed < len(evictable) && evictable[removed].settledAt().Before(cutoff) {
			delete(m.jobs, evictable[removed].ID)
			removed++
		}
	}
	for removed < len(evictable) && len(m.jobs) > m.maxJobs {
		delete(m.jobs, evictable[removed].ID)
		removed++
	}
	return removed
}
