package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// fakeScanner mimics the orchestrator's request checks and returns one
// success result per requested probe.
type fakeScanner struct {
	catalog []string
	block   chan struct{}
	runErr  error

	mu    sync.Mutex
	calls []fakeRun
}

type fakeRun struct {
	target string
	probes []string
	cache  bool
}

func newFakeScanner(names ...string) *fakeScanner {
	if len(names) == 0 {
		names = []string{"dns", "http", "ssl"}
	}
	return &fakeScanner{catalog: names}
}

func (f *fakeScanner) Catalog() []string {
	return append([]string(nil), f.catalog...)
}

func (f *fakeScanner) Validate(target string, names []string) error {
	if target == "" {
		return &probe.ConfigurationError{Field: "target", Message: "must not be empty"}
	}
	if len(names) == 0 {
		return &probe.ConfigurationError{Field: "probes", Message: "at least one probe is required"}
	}
	var unknown []string
	for _, name := range names {
		found := false
		for _, known := range f.catalog {
			if known == name {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return &probe.ConfigurationError{Unknown: unknown}
	}
	return nil
}

func (f *fakeScanner) Run(ctx context.Context, target string, names []string, cacheEnabled bool) (*probe.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeRun{target: target, probes: names, cache: cacheEnabled})
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	results := make(map[string]probe.Result, len(names))
	for _, name := range names {
		results[name] = probe.Success("ok", nil)
	}
	return &probe.Report{
		ID:           "report-" + target,
		Target:       target,
		GeneratedAt:  time.Now().UTC(),
		CacheEnabled: cacheEnabled,
		Results:      results,
	}, nil
}

func (f *fakeScanner) runs() []fakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeRun(nil), f.calls...)
}

func newTestScanJobs(t *testing.T, scanner Scanner, opts ...ScanJobsOption) *ScanJobs {
	t.Helper()
	manager := NewJobManager()
	t.Cleanup(manager.Close)
	opts = append([]ScanJobsOption{WithJobLogger(zaptest.NewLogger(t))}, opts...)
	return NewScanJobs(manager, scanner, opts...)
}

func boolPtr(v bool) *bool { return &v }

func TestScanJobsStartScanRunsInBackground(t *testing.T) {
	scanner := newFakeScanner()
	var hooked *probe.Report
	jobs := newTestScanJobs(t, scanner, WithReportHook(func(r *probe.Report) { hooked = r }))

	job, err := jobs.StartScan(context.Background(), ScanRequest{Target: "example.com", Probes: []string{"dns"}})
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)
	assert.True(t, job.Cache)

	jobs.Wait()

	got, err := jobs.GetScan(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobDone, got.Status)
	assert.Equal(t, "report-example.com", got.ReportID)
	require.NotNil(t, got.Report)
	assert.Contains(t, got.Report.Results, "dns")
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
	require.NotNil(t, hooked)
	assert.Equal(t, got.ReportID, hooked.ID)
}

func TestScanJobsDefaultsToWholeCatalog(t *testing.T) {
	scanner := newFakeScanner("dns", "http")
	jobs := newTestScanJobs(t, scanner)

	job, err := jobs.StartScan(context.Background(), ScanRequest{Target: "example.com", Cache: boolPtr(false)})
	require.NoError(t, err)
	jobs.Wait()

	assert.Equal(t, []string{"dns", "http"}, job.Probes)
	runs := scanner.runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"dns", "http"}, runs[0].probes)
	assert.False(t, runs[0].cache)
}

func TestScanJobsRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name      string
		req       ScanRequest
		configErr bool
	}{
		{name: "missing target", req: ScanRequest{Probes: []string{"dns"}}},
		{name: "blank probe name", req: ScanRequest{Target: "example.com", Probes: []string{""}}},
		{name: "explicit empty probe list", req: ScanRequest{Target: "example.com", Probes: []string{}}, configErr: true},
		{name: "unknown probe", req: ScanRequest{Target: "example.com", Probes: []string{"dns", "whois"}}, configErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := newFakeScanner()
			jobs := newTestScanJobs(t, scanner)

			job, err := jobs.StartScan(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, job)
			if tt.configErr {
				assert.True(t, probe.IsConfigurationError(err), "expected configuration error, got %v", err)
			} else {
				assert.ErrorIs(t, err, sharedErrors.ErrValidation)
			}
			assert.Empty(t, jobs.manager.ListJobs(0))
			assert.Empty(t, scanner.runs())
		})
	}
}

func TestScanJobsRecordsRunError(t *testing.T) {
	scanner := newFakeScanner()
	scanner.runErr = errors.New("store exploded")
	jobs := newTestScanJobs(t, scanner)

	job, err := jobs.StartScan(context.Background(), ScanRequest{Target: "example.com", Probes: []string{"ssl"}})
	require.NoError(t, err)
	jobs.Wait()

	got, err := jobs.GetScan(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobError, got.Status)
	assert.Equal(t, "store exploded", got.Error)
	assert.Nil(t, got.Report)
}

func TestScanJobsTimeoutCancelsRun(t *testing.T) {
	scanner := newFakeScanner()
	scanner.block = make(chan struct{})
	scanner.runErr = context.DeadlineExceeded
	jobs := newTestScanJobs(t, scanner, WithScanTimeout(20*time.Millisecond))

	_, err := jobs.StartScan(context.Background(), ScanRequest{Target: "example.com", Probes: []string{"dns"}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(scanner.block)
		t.Fatal("scan timeout did not cancel the run")
	}
}

func TestScanJobsGetScanUnknown(t *testing.T) {
	jobs := newTestScanJobs(t, newFakeScanner())

	_, err := jobs.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, sharedErrors.ErrScanNotFound)
}

func TestScanJobsProbes(t *testing.T) {
	jobs := newTestScanJobs(t, newFakeScanner("dns"))
	assert.Equal(t, []string{"dns"}, jobs.Probes())
}
